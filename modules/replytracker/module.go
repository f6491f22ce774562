// Package replytracker removes the bot's answer when the message that
// triggered it is deleted.
package replytracker

import (
	"context"
	"fmt"

	"sandwich/pkg/sandwich"
)

// Module discards tracked replies whose triggering message was retracted.
type Module struct {
	replies sandwich.ReplyCache
}

// New creates a reply tracker module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "replytracker"
}

// Spec declares interest in message retractions.
func (m *Module) Spec() sandwich.ModuleSpec {
	return sandwich.ModuleSpec{
		Handlers: []sandwich.ModuleHandler{
			{
				Capability: sandwich.Capability{
					Name:        "reply-retraction-handler",
					Description: "deletes the bot reply to a deleted message",
					Interest: sandwich.InterestSet{
						Kinds:           []sandwich.EventKind{sandwich.EventKindMessageRetracted},
						RequireMutation: true,
					},
					RequiredServices: []string{sandwich.ServiceReplyCache},
				},
				Subscription: sandwich.SubscriptionSpec{Name: "replytracker-retractions"},
				Handler:      m.handleRetraction,
			},
		},
	}
}

// OnRegister resolves the reply cache.
func (m *Module) OnRegister(_ context.Context, runtime sandwich.ModuleRuntime) error {
	replies, err := sandwich.ResolveAs[sandwich.ReplyCache](runtime.Services(), sandwich.ServiceReplyCache)
	if err != nil {
		return fmt.Errorf("replytracker resolve reply cache: %w", err)
	}
	m.replies = replies

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleRetraction(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Kind != sandwich.EventKindMessageRetracted || event.Mutation == nil {
		return nil
	}

	requestID, err := sandwich.RequestIDFromEvent(event)
	if err != nil {
		return fmt.Errorf("replytracker derive request id: %w", err)
	}
	m.replies.Discard(ctx, requestID)

	return nil
}

var (
	_ sandwich.Module          = (*Module)(nil)
	_ sandwich.ModuleRegistrar = (*Module)(nil)
)
