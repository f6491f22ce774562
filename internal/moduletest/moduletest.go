// Package moduletest provides recording stand-ins for the services modules
// resolve at registration, shared by module package tests.
package moduletest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sandwich/pkg/sandwich"
)

// Replies records ReplyCache calls and answers with sequential message ids.
type Replies struct {
	// Err, when set, fails every Reply call.
	Err error

	mu        sync.Mutex
	requests  []sandwich.ReplyRequest
	discarded []string
}

// Reply records request.
func (r *Replies) Reply(_ context.Context, request sandwich.ReplyRequest) (*sandwich.OutboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, request)
	if r.Err != nil {
		return nil, r.Err
	}
	if !request.ForceNew && request.IsEmpty() {
		return nil, nil
	}

	return &sandwich.OutboundMessage{
		ID:     fmt.Sprintf("reply-%d", len(r.requests)),
		Target: request.Target,
	}, nil
}

// Discard records requestID.
func (r *Replies) Discard(_ context.Context, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.discarded = append(r.discarded, requestID)
}

// Lookup always misses.
func (r *Replies) Lookup(string) (sandwich.ReplyRecord, bool) {
	return sandwich.ReplyRecord{}, false
}

// Requests returns a copy of every recorded reply request.
func (r *Replies) Requests() []sandwich.ReplyRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]sandwich.ReplyRequest(nil), r.requests...)
}

// Discarded returns a copy of every discarded request id.
func (r *Replies) Discarded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.discarded...)
}

// Dispatcher records SinkDispatcher and HistoryDispatcher calls.
type Dispatcher struct {
	// History is returned by ListMessages, truncated to the requested limit.
	History []sandwich.HistoryMessage
	// Err, when set, fails every call.
	Err error

	mu        sync.Mutex
	sent      []sandwich.SendMessageRequest
	reactions []sandwich.SetReactionRequest
	deleted   []string
	cleared   []string
}

// SendMessage records request.
func (d *Dispatcher) SendMessage(
	_ context.Context,
	request sandwich.SendMessageRequest,
) (*sandwich.OutboundMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	d.sent = append(d.sent, request)

	return &sandwich.OutboundMessage{ID: fmt.Sprintf("sent-%d", len(d.sent)), Target: request.Target}, nil
}

// EditMessage accepts every edit.
func (d *Dispatcher) EditMessage(context.Context, sandwich.EditMessageRequest) error {
	return d.Err
}

// DeleteMessage records the deleted id.
func (d *Dispatcher) DeleteMessage(_ context.Context, request sandwich.DeleteMessageRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	d.deleted = append(d.deleted, request.MessageID)

	return nil
}

// SetReaction records request.
func (d *Dispatcher) SetReaction(_ context.Context, request sandwich.SetReactionRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	d.reactions = append(d.reactions, request)

	return nil
}

// ListMessages returns up to request.Limit entries of History.
func (d *Dispatcher) ListMessages(
	_ context.Context,
	request sandwich.ListMessagesRequest,
) ([]sandwich.HistoryMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	history := d.History
	if len(history) > request.Limit {
		history = history[:request.Limit]
	}

	return append([]sandwich.HistoryMessage(nil), history...), nil
}

// DeleteMessages records every deleted id.
func (d *Dispatcher) DeleteMessages(_ context.Context, request sandwich.DeleteMessagesRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	d.deleted = append(d.deleted, request.MessageIDs...)

	return nil
}

// ClearReactions records the cleared message id.
func (d *Dispatcher) ClearReactions(_ context.Context, request sandwich.ClearReactionsRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	d.cleared = append(d.cleared, request.MessageID)

	return nil
}

// Sent returns a copy of every recorded send.
func (d *Dispatcher) Sent() []sandwich.SendMessageRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]sandwich.SendMessageRequest(nil), d.sent...)
}

// Reactions returns a copy of every recorded reaction change.
func (d *Dispatcher) Reactions() []sandwich.SetReactionRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]sandwich.SetReactionRequest(nil), d.reactions...)
}

// Deleted returns a copy of every deleted message id.
func (d *Dispatcher) Deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.deleted...)
}

// Cleared returns a copy of every message id whose reactions were cleared.
func (d *Dispatcher) Cleared() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.cleared...)
}

// Registry is a map-backed ServiceRegistry.
type Registry map[string]any

// Register binds service to name.
func (r Registry) Register(name string, service any) error {
	if _, exists := r[name]; exists {
		return fmt.Errorf("register %s: %w", name, sandwich.ErrServiceAlreadyRegistered)
	}
	r[name] = service

	return nil
}

// Resolve returns the service bound to name.
func (r Registry) Resolve(name string) (any, error) {
	service, exists := r[name]
	if !exists {
		return nil, fmt.Errorf("resolve %s: %w", name, sandwich.ErrServiceNotFound)
	}

	return service, nil
}

// Runtime is a ModuleRuntime over a fixed registry.
type Runtime struct {
	Registry sandwich.ServiceRegistry
}

// Services returns the wrapped registry.
func (r Runtime) Services() sandwich.ServiceRegistry {
	return r.Registry
}

// Subscribe is not supported by tests and returns an error.
func (Runtime) Subscribe(
	context.Context,
	sandwich.InterestSet,
	sandwich.SubscriptionSpec,
	sandwich.EventHandler,
) (sandwich.Subscription, error) {
	return nil, fmt.Errorf("subscribe: not supported by moduletest runtime")
}

// CommandEvent builds a command.received event for text sent by actor on the
// "dc-main" discord sink in conversation "c1", message "msg-1".
//
// It panics when text does not parse as a command.
func CommandEvent(text string, actor sandwich.Actor, mentions ...sandwich.Actor) *sandwich.Event {
	candidate, matched, err := sandwich.ParseCommandCandidate(text)
	if err != nil || !matched {
		panic(fmt.Sprintf("moduletest: %q is not a command: %v", text, err))
	}

	return &sandwich.Event{
		ID:         "event-1#command",
		Kind:       sandwich.EventKindCommandReceived,
		OccurredAt: time.Unix(1, 0).UTC(),
		Source: sandwich.EventSource{
			Platform: sandwich.PlatformDiscord,
			ID:       "dc-main",
		},
		Conversation: sandwich.Conversation{
			ID:   "c1",
			Type: sandwich.ConversationTypeGroup,
		},
		Actor: actor,
		Message: &sandwich.Message{
			ID:       "msg-1",
			Text:     text,
			Mentions: append([]sandwich.Actor(nil), mentions...),
		},
		Command: &sandwich.CommandInvocation{
			Name:            candidate.Name,
			Value:           candidate.Tail,
			Args:            candidate.Args,
			SourceEventID:   "event-1",
			SourceEventKind: sandwich.EventKindMessageCreated,
			RawInput:        text,
		},
	}
}

// RequestID is the reply cache key CommandEvent answers to.
var RequestID = sandwich.NewRequestID(sandwich.PlatformDiscord, "c1", "msg-1")

var (
	_ sandwich.ReplyCache        = (*Replies)(nil)
	_ sandwich.SinkDispatcher    = (*Dispatcher)(nil)
	_ sandwich.HistoryDispatcher = (*Dispatcher)(nil)
	_ sandwich.ServiceRegistry   = Registry(nil)
	_ sandwich.ModuleRuntime     = Runtime{}
)
