package telegram

import (
	"errors"
	"strings"

	"sandwich/pkg/sandwich"

	"github.com/gotd/td/tgerr"
)

// goneTypes are RPC error types that mean the message no longer exists.
var goneTypes = []string{"MESSAGE_ID_INVALID", "MESSAGE_IDS_EMPTY", "MESSAGE_EDIT_INVALID"}

// classify wraps an API error in *sandwich.OutboundError. Request and
// capability errors raised before the call pass through unchanged.
func classify(op sandwich.OutboundOperation, sink sandwich.SinkRef, err error) error {
	if errors.Is(err, sandwich.ErrInvalidOutboundRequest) || errors.Is(err, sandwich.ErrOutboundUnsupported) {
		return err
	}

	classified := &sandwich.OutboundError{
		Operation: op,
		Kind:      sandwich.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}
	rpcErr, ok := tgerr.As(err)
	if !ok {
		return classified
	}
	classified.Code = rpcErr.Code
	classified.Type = rpcErr.Type
	classified.Kind = kindOf(rpcErr)
	if wait, flood := tgerr.AsFloodWait(err); flood {
		classified.Kind = sandwich.OutboundErrorKindRateLimited
		classified.RetryAfter = wait
	}

	return classified
}

func kindOf(rpcErr *tgerr.Error) sandwich.OutboundErrorKind {
	errType := strings.ToUpper(rpcErr.Type)
	for _, gone := range goneTypes {
		if errType == gone {
			return sandwich.OutboundErrorKindNotFound
		}
	}

	switch code := rpcErr.Code; {
	case code == 420 || code == 429 || strings.Contains(errType, "FLOOD"):
		return sandwich.OutboundErrorKindRateLimited
	case code == 404:
		return sandwich.OutboundErrorKindNotFound
	case code == 303 || code >= 500:
		return sandwich.OutboundErrorKindTemporary
	case code >= 400:
		return sandwich.OutboundErrorKindPermanent
	}

	return sandwich.OutboundErrorKindUnknown
}
