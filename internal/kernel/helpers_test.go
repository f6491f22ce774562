package kernel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sandwich/pkg/sandwich"
)

var createdInterest = sandwich.InterestSet{Kinds: []sandwich.EventKind{sandwich.EventKindMessageCreated}}

func newKernel(t *testing.T, options ...Option) *Kernel {
	t.Helper()

	k := New(options...)
	t.Cleanup(func() {
		if err := k.dispatcher.close(context.Background()); err != nil {
			t.Errorf("close dispatcher: %v", err)
		}
	})

	return k
}

func createdEvent(id string, text string) *sandwich.Event {
	return &sandwich.Event{
		ID:           id,
		Kind:         sandwich.EventKindMessageCreated,
		OccurredAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:       sandwich.EventSource{Platform: sandwich.PlatformDiscord, ID: "discord-main"},
		Conversation: sandwich.Conversation{ID: "chan-1", Type: sandwich.ConversationTypeGroup},
		Actor:        sandwich.Actor{ID: "user-1", Username: "alice"},
		Message:      &sandwich.Message{ID: "msg-" + id, Text: text},
	}
}

func editedEvent(id string, target string, text string) *sandwich.Event {
	return &sandwich.Event{
		ID:           id,
		Kind:         sandwich.EventKindMessageEdited,
		OccurredAt:   time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC),
		Source:       sandwich.EventSource{Platform: sandwich.PlatformDiscord, ID: "discord-main"},
		Conversation: sandwich.Conversation{ID: "chan-1", Type: sandwich.ConversationTypeGroup},
		Actor:        sandwich.Actor{ID: "user-1", Username: "alice"},
		Mutation: &sandwich.Mutation{
			Type:            sandwich.MutationTypeEdit,
			TargetMessageID: target,
			After:           &sandwich.MessageSnapshot{Text: text},
		},
	}
}

func retractedEvent(id string, target string) *sandwich.Event {
	return &sandwich.Event{
		ID:           id,
		Kind:         sandwich.EventKindMessageRetracted,
		OccurredAt:   time.Date(2024, 5, 1, 12, 2, 0, 0, time.UTC),
		Source:       sandwich.EventSource{Platform: sandwich.PlatformDiscord, ID: "discord-main"},
		Conversation: sandwich.Conversation{ID: "chan-1", Type: sandwich.ConversationTypeGroup},
		Mutation: &sandwich.Mutation{
			Type:            sandwich.MutationTypeRetraction,
			TargetMessageID: target,
		},
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, events <-chan *sandwich.Event) *sandwich.Event {
	t.Helper()

	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event within 2s")
		return nil
	}
}

func ignore(context.Context, *sandwich.Event) error {
	return nil
}

type moduleStub struct {
	name       string
	spec       sandwich.ModuleSpec
	onRegister func(ctx context.Context, runtime sandwich.ModuleRuntime) error

	registered atomic.Int32
	started    atomic.Int32
	stopped    atomic.Int32
}

func (m *moduleStub) Name() string { return m.name }

func (m *moduleStub) Spec() sandwich.ModuleSpec { return m.spec }

func (m *moduleStub) OnRegister(ctx context.Context, runtime sandwich.ModuleRuntime) error {
	m.registered.Add(1)
	if m.onRegister != nil {
		return m.onRegister(ctx, runtime)
	}

	return nil
}

func (m *moduleStub) OnStart(context.Context) error {
	m.started.Add(1)
	return nil
}

func (m *moduleStub) OnShutdown(context.Context) error {
	m.stopped.Add(1)
	return nil
}

// driverStub publishes its queued events and then waits for cancellation,
// or fails right away when startErr is set.
type driverStub struct {
	name     string
	startErr error
	publish  []*sandwich.Event

	started  atomic.Int32
	shutdown atomic.Int32
}

func (d *driverStub) Name() string { return d.name }

func (d *driverStub) Start(ctx context.Context, sink sandwich.EventSink) error {
	d.started.Add(1)
	if d.startErr != nil {
		return d.startErr
	}
	for _, event := range d.publish {
		if err := sink.Publish(ctx, event); err != nil {
			return err
		}
	}
	<-ctx.Done()

	return ctx.Err()
}

func (d *driverStub) Shutdown(context.Context) error {
	d.shutdown.Add(1)
	return nil
}

type replyCacheStub struct {
	mu       sync.Mutex
	requests []sandwich.ReplyRequest
}

func (c *replyCacheStub) Reply(_ context.Context, request sandwich.ReplyRequest) (*sandwich.OutboundMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, request)

	return &sandwich.OutboundMessage{ID: "reply-1", Target: request.Target}, nil
}

func (*replyCacheStub) Discard(context.Context, string) {}

func (*replyCacheStub) Lookup(string) (sandwich.ReplyRecord, bool) {
	return sandwich.ReplyRecord{}, false
}

func (c *replyCacheStub) sent() []sandwich.ReplyRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]sandwich.ReplyRequest(nil), c.requests...)
}

type dispatcherStub struct {
	mu   sync.Mutex
	sent []sandwich.SendMessageRequest
}

func (d *dispatcherStub) SendMessage(_ context.Context, request sandwich.SendMessageRequest) (*sandwich.OutboundMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, request)

	return &sandwich.OutboundMessage{ID: "out-1", Target: request.Target}, nil
}

func (*dispatcherStub) EditMessage(context.Context, sandwich.EditMessageRequest) error {
	return errors.New("unexpected edit")
}

func (*dispatcherStub) DeleteMessage(context.Context, sandwich.DeleteMessageRequest) error {
	return errors.New("unexpected delete")
}

func (*dispatcherStub) SetReaction(context.Context, sandwich.SetReactionRequest) error {
	return errors.New("unexpected reaction")
}
