package sandwich

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutboundOperation names the dispatcher call that failed.
type OutboundOperation string

// Dispatcher operations.
const (
	OutboundOperationSendMessage    OutboundOperation = "send_message"
	OutboundOperationEditMessage    OutboundOperation = "edit_message"
	OutboundOperationDeleteMessage  OutboundOperation = "delete_message"
	OutboundOperationSetReaction    OutboundOperation = "set_reaction"
	OutboundOperationListMessages   OutboundOperation = "list_messages"
	OutboundOperationDeleteMessages OutboundOperation = "delete_messages"
	OutboundOperationClearReactions OutboundOperation = "clear_reactions"
)

// OutboundErrorKind tells callers how to react to a failed call.
type OutboundErrorKind string

const (
	// OutboundErrorKindNotFound means the target message is already gone.
	OutboundErrorKindNotFound OutboundErrorKind = "not_found"
	// OutboundErrorKindRateLimited means the platform asked us to back off.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindTemporary failures may succeed on retry.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindPermanent failures will not succeed on retry.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	OutboundErrorKindUnknown   OutboundErrorKind = "unknown"
)

// OutboundError is returned by dispatchers when the platform rejects a call.
// Code and Type carry the platform's own status when it reports one.
type OutboundError struct {
	Operation  OutboundOperation
	Kind       OutboundErrorKind
	Platform   Platform
	SinkID     string
	RetryAfter time.Duration
	Code       int
	Type       string
	Cause      error
}

func (e *OutboundError) Error() string {
	var b strings.Builder
	b.WriteString("outbound error")

	sep := ": "
	attr := func(key, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		b.WriteString(sep + key + "=" + value)
		sep = " "
	}
	attr("operation", string(e.Operation))
	attr("kind", string(e.Kind))
	attr("platform", string(e.Platform))
	attr("sink_id", e.SinkID)
	if e.RetryAfter > 0 {
		attr("retry_after", e.RetryAfter.String())
	}
	if e.Code != 0 {
		attr("code", fmt.Sprint(e.Code))
	}
	attr("type", e.Type)

	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}

	return b.String()
}

func (e *OutboundError) Unwrap() error {
	return e.Cause
}

// AsOutboundError finds the first *OutboundError in err's chain.
func AsOutboundError(err error) (*OutboundError, bool) {
	var outboundErr *OutboundError
	if !errors.As(err, &outboundErr) || outboundErr == nil {
		return nil, false
	}

	return outboundErr, true
}

// AsOutboundRateLimit reports whether err is a rate limit and, if the
// platform said so, how long to wait. A zero delay with true means no hint.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	if outboundErr, ok := AsOutboundError(err); ok && outboundErr.Kind == OutboundErrorKindRateLimited {
		return outboundErr.RetryAfter, true
	}

	return 0, false
}

// IsOutboundNotFound reports whether err says the target message is gone.
func IsOutboundNotFound(err error) bool {
	outboundErr, ok := AsOutboundError(err)

	return ok && outboundErr.Kind == OutboundErrorKindNotFound
}
