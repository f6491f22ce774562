package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sandwich/pkg/sandwich"

	"github.com/bwmarrin/discordgo"
)

type stubGateway struct {
	mu       sync.Mutex
	handlers []interface{}
	removed  int
	opened   chan struct{}
	closed   bool
	openErr  error
}

func newStubGateway() *stubGateway {
	return &stubGateway{opened: make(chan struct{})}
}

func (g *stubGateway) AddHandler(handler interface{}) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, handler)

	return func() {
		g.mu.Lock()
		g.removed++
		g.mu.Unlock()
	}
}

func (g *stubGateway) Open() error {
	if g.openErr != nil {
		return g.openErr
	}
	close(g.opened)

	return nil
}

func (g *stubGateway) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	return nil
}

// emit invokes every registered handler accepting the event type.
func (g *stubGateway) emit(event interface{}) {
	g.mu.Lock()
	handlers := append([]interface{}(nil), g.handlers...)
	g.mu.Unlock()

	for _, handler := range handlers {
		switch typed := event.(type) {
		case *discordgo.MessageCreate:
			if fn, ok := handler.(func(*discordgo.Session, *discordgo.MessageCreate)); ok {
				fn(nil, typed)
			}
		case *discordgo.MessageUpdate:
			if fn, ok := handler.(func(*discordgo.Session, *discordgo.MessageUpdate)); ok {
				fn(nil, typed)
			}
		case *discordgo.MessageDelete:
			if fn, ok := handler.(func(*discordgo.Session, *discordgo.MessageDelete)); ok {
				fn(nil, typed)
			}
		}
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []*sandwich.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event *sandwich.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)

	return nil
}

func (s *recordingSink) snapshot() []*sandwich.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*sandwich.Event(nil), s.events...)
}

func TestDriverPublishesGatewayEvents(t *testing.T) {
	t.Parallel()

	gateway := newStubGateway()
	driver, err := NewDriver(gateway, WithName("dc-main"))
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() {
		done <- driver.Start(ctx, sink)
	}()

	select {
	case <-gateway.opened:
	case <-time.After(time.Second):
		t.Fatal("gateway was not opened")
	}

	author := &discordgo.User{ID: "u1", Username: "alice"}
	gateway.emit(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "1", ChannelID: "c1", GuildID: "g1", Content: "!g", Timestamp: time.Now().UTC(), Author: author,
	}})
	gateway.emit(&discordgo.MessageUpdate{Message: &discordgo.Message{
		ID: "1", ChannelID: "c1", GuildID: "g1", Content: "!how x", Author: author,
	}})
	gateway.emit(&discordgo.MessageDelete{Message: &discordgo.Message{ID: "1", ChannelID: "c1"}})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("driver did not stop")
	}

	events := sink.snapshot()
	wantKinds := []sandwich.EventKind{
		sandwich.EventKindMessageCreated,
		sandwich.EventKindMessageEdited,
		sandwich.EventKindMessageRetracted,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("published = %d, want %d", len(events), len(wantKinds))
	}
	for idx, event := range events {
		if event.Kind != wantKinds[idx] {
			t.Fatalf("event[%d] kind = %s, want %s", idx, event.Kind, wantKinds[idx])
		}
		if event.Source != (sandwich.EventSource{Platform: sandwich.PlatformDiscord, ID: "dc-main"}) {
			t.Fatalf("source = %+v, want discord/dc-main", event.Source)
		}
	}

	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	if !gateway.closed {
		t.Fatal("gateway must be closed on shutdown")
	}
	if gateway.removed != 3 {
		t.Fatalf("removed handlers = %d, want 3", gateway.removed)
	}
}

func TestDriverReportsPublishFailures(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		reported error
	)
	gateway := newStubGateway()
	driver, err := NewDriver(gateway, WithErrorHandler(func(_ context.Context, err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sinkErr := errors.New("bus closed")
	done := make(chan error, 1)
	go func() {
		done <- driver.Start(ctx, &recordingSink{err: sinkErr})
	}()
	<-gateway.opened

	gateway.emit(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "1", ChannelID: "c1", Timestamp: time.Now().UTC(), Author: &discordgo.User{ID: "u1"},
	}})
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(reported, sinkErr) {
		t.Fatalf("reported = %v, want wrapped sink error", reported)
	}
}

func TestDriverStartFailures(t *testing.T) {
	t.Parallel()

	if _, err := NewDriver(nil); err == nil {
		t.Fatal("expected nil session error")
	}

	gateway := newStubGateway()
	gateway.openErr = errors.New("invalid token")
	driver, err := NewDriver(gateway)
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}
	if err := driver.Start(context.Background(), nil); err == nil {
		t.Fatal("expected nil sink error")
	}
	if err := driver.Start(context.Background(), &recordingSink{}); !errors.Is(err, gateway.openErr) {
		t.Fatalf("start error = %v, want open error", err)
	}
	if gateway.removed != 3 {
		t.Fatalf("removed handlers = %d, want 3 after failed open", gateway.removed)
	}
}
