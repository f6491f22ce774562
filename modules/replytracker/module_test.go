package replytracker

import (
	"context"
	"testing"
	"time"

	"sandwich/internal/moduletest"
	"sandwich/pkg/sandwich"
)

func TestHandleRetraction(t *testing.T) {
	t.Parallel()

	retraction := func(target string) *sandwich.Event {
		return &sandwich.Event{
			ID:           "e1",
			Kind:         sandwich.EventKindMessageRetracted,
			OccurredAt:   time.Unix(1, 0).UTC(),
			Source:       sandwich.EventSource{Platform: sandwich.PlatformDiscord, ID: "dc-main"},
			Conversation: sandwich.Conversation{ID: "c1"},
			Mutation: &sandwich.Mutation{
				Type:            sandwich.MutationTypeRetraction,
				TargetMessageID: target,
			},
		}
	}

	tests := []struct {
		name          string
		event         *sandwich.Event
		wantDiscarded []string
		wantErr       bool
	}{
		{
			name:          "retracted trigger discards its reply",
			event:         retraction("msg-1"),
			wantDiscarded: []string{moduletest.RequestID},
		},
		{
			name:    "retraction without target fails",
			event:   retraction(""),
			wantErr: true,
		},
		{
			name:  "command events are ignored",
			event: moduletest.CommandEvent("!how", sandwich.Actor{ID: "u1"}),
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			replies := &moduletest.Replies{}
			module := New()
			if err := module.OnRegister(context.Background(), moduletest.Runtime{Registry: moduletest.Registry{
				sandwich.ServiceReplyCache: replies,
			}}); err != nil {
				t.Fatalf("register failed: %v", err)
			}

			err := module.handleRetraction(context.Background(), testCase.event)
			if (err != nil) != testCase.wantErr {
				t.Fatalf("error = %v, want error %v", err, testCase.wantErr)
			}

			discarded := replies.Discarded()
			if len(discarded) != len(testCase.wantDiscarded) {
				t.Fatalf("discarded = %v, want %v", discarded, testCase.wantDiscarded)
			}
			for idx := range discarded {
				if discarded[idx] != testCase.wantDiscarded[idx] {
					t.Fatalf("discarded = %v, want %v", discarded, testCase.wantDiscarded)
				}
			}
		})
	}
}
