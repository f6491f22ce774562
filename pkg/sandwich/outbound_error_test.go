package sandwich

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestOutboundErrorChain(t *testing.T) {
	t.Parallel()

	cause := errors.New("rpc failed")
	err := fmt.Errorf("edit reply: %w", &OutboundError{
		Operation: OutboundOperationEditMessage,
		Kind:      OutboundErrorKindTemporary,
		Platform:  PlatformTelegram,
		SinkID:    "tg-main",
		Code:      500,
		Cause:     cause,
	})

	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr.SinkID != "tg-main" {
		t.Fatalf("AsOutboundError() = %+v, %v", outboundErr, ok)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(%v, cause) = false", err)
	}
	if _, ok := AsOutboundError(nil); ok {
		t.Fatal("AsOutboundError(nil) = true")
	}
}

func TestOutboundErrorClassifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		notFound    bool
		rateLimited bool
		retryAfter  time.Duration
	}{
		{name: "plain error", err: errors.New("plain")},
		{
			name:     "wrapped not found",
			err:      fmt.Errorf("delete: %w", &OutboundError{Kind: OutboundErrorKindNotFound, Code: 404}),
			notFound: true,
		},
		{
			name:        "rate limited with hint",
			err:         &OutboundError{Kind: OutboundErrorKindRateLimited, RetryAfter: 2 * time.Second},
			rateLimited: true,
			retryAfter:  2 * time.Second,
		},
		{
			name:        "rate limited without hint",
			err:         &OutboundError{Kind: OutboundErrorKindRateLimited},
			rateLimited: true,
		},
		{name: "permanent", err: &OutboundError{Kind: OutboundErrorKindPermanent, Code: 403}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := IsOutboundNotFound(testCase.err); got != testCase.notFound {
				t.Fatalf("IsOutboundNotFound() = %v, want %v", got, testCase.notFound)
			}
			retry, limited := AsOutboundRateLimit(testCase.err)
			if limited != testCase.rateLimited || retry != testCase.retryAfter {
				t.Fatalf("AsOutboundRateLimit() = %v, %v; want %v, %v",
					retry, limited, testCase.retryAfter, testCase.rateLimited)
			}
		})
	}
}

func TestOutboundErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *OutboundError
		want string
	}{
		{name: "empty", err: &OutboundError{}, want: "outbound error"},
		{name: "cause only", err: &OutboundError{Cause: errors.New("boom")}, want: "outbound error: boom"},
		{
			name: "discord missing message",
			err: &OutboundError{
				Operation: OutboundOperationDeleteMessage,
				Kind:      OutboundErrorKindNotFound,
				Platform:  PlatformDiscord,
				Code:      10008,
				Cause:     errors.New("Unknown Message"),
			},
			want: "outbound error: operation=delete_message kind=not_found platform=discord code=10008: Unknown Message",
		},
		{
			name: "telegram flood wait",
			err: &OutboundError{
				Operation:  OutboundOperationSendMessage,
				Kind:       OutboundErrorKindRateLimited,
				SinkID:     "tg",
				RetryAfter: 3 * time.Second,
				Type:       "FLOOD_WAIT",
			},
			want: "outbound error: operation=send_message kind=rate_limited sink_id=tg retry_after=3s type=FLOOD_WAIT",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := testCase.err.Error(); got != testCase.want {
				t.Fatalf("Error() = %q, want %q", got, testCase.want)
			}
		})
	}
}
