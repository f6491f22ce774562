package discord

import (
	"context"
	"errors"
	"net/http"

	"sandwich/pkg/sandwich"

	"github.com/bwmarrin/discordgo"
)

// classify wraps a REST failure in a sandwich.OutboundError.
func classify(op sandwich.OutboundOperation, sink sandwich.SinkRef, err error) error {
	if err == nil {
		return nil
	}
	out := &sandwich.OutboundError{
		Operation: op,
		Kind:      sandwich.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}

	var (
		rateErr *discordgo.RateLimitError
		restErr *discordgo.RESTError
	)
	switch {
	case errors.As(err, &rateErr):
		out.Kind = sandwich.OutboundErrorKindRateLimited
		out.Code = http.StatusTooManyRequests
		if rateErr.RateLimit != nil && rateErr.TooManyRequests != nil {
			out.RetryAfter = rateErr.RetryAfter
		}
	case errors.As(err, &restErr):
		if restErr.Response != nil {
			out.Code = restErr.Response.StatusCode
		}
		apiCode := 0
		if restErr.Message != nil {
			apiCode = restErr.Message.Code
			out.Type = restErr.Message.Message
		}
		out.Kind = kindOf(out.Code, apiCode)
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = sandwich.OutboundErrorKindTemporary
	}

	return out
}

func kindOf(status int, apiCode int) sandwich.OutboundErrorKind {
	switch {
	case apiCode == discordgo.ErrCodeUnknownMessage || status == http.StatusNotFound:
		return sandwich.OutboundErrorKindNotFound
	case status == http.StatusTooManyRequests:
		return sandwich.OutboundErrorKindRateLimited
	case status >= http.StatusInternalServerError:
		return sandwich.OutboundErrorKindTemporary
	case status >= http.StatusBadRequest:
		return sandwich.OutboundErrorKindPermanent
	default:
		return sandwich.OutboundErrorKindUnknown
	}
}
