package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"sandwich/pkg/sandwich"

	"github.com/gotd/td/tg"
)

type fakeSession struct {
	err error
}

func (s fakeSession) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.err != nil {
		return s.err
	}

	return fn(ctx)
}

type recordingSink struct {
	mu     sync.Mutex
	err    error
	events []*sandwich.Event
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

func closedQueue(items ...incoming) <-chan incoming {
	queue := make(chan incoming, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	return queue
}

func TestDriverPublishesUntilQueueCloses(t *testing.T) {
	t.Parallel()

	queue := closedQueue(
		incoming{update: &tg.UpdateNewMessage{Message: groupMessage(1, "!help")}, ents: testEntities()},
		incoming{update: &tg.UpdateUserTyping{UserID: testUserID}},
		incoming{update: &tg.UpdateDeleteMessages{Messages: []int{1}}, date: unixTime(1700000000)},
	)
	driver := newDriver("tg-main", fakeSession{}, queue, NewPeerCache())

	sink := &recordingSink{}
	if err := driver.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("published = %d, want 2", len(sink.events))
	}
	wantSource := sandwich.EventSource{Platform: sandwich.PlatformTelegram, ID: "tg-main"}
	for _, event := range sink.events {
		if event.Source != wantSource {
			t.Fatalf("source = %+v, want %+v", event.Source, wantSource)
		}
	}
	if sink.events[1].Kind != sandwich.EventKindMessageRetracted {
		t.Fatalf("second event = %s, want retraction", sink.events[1].Kind)
	}
}

func TestDriverReportsFailures(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		reported []error
	)
	report := func(_ context.Context, err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	queue := closedQueue(
		incoming{update: &tg.UpdateNewMessage{Message: groupMessage(1, "!help")}, ents: testEntities()},
	)
	driver := newDriver("", fakeSession{}, queue, NewPeerCache(), WithErrorHandler(report))
	if driver.Name() != DriverType {
		t.Fatalf("Name() = %s, want %s", driver.Name(), DriverType)
	}

	if err := driver.Start(context.Background(), &recordingSink{err: sandwich.ErrEventDropped}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(reported) != 1 || !errors.Is(reported[0], sandwich.ErrEventDropped) {
		t.Fatalf("reported = %v, want one dropped event", reported)
	}

	// A nil peer cache panics inside the mapper; the driver keeps going.
	panicking := newDriver("tg", fakeSession{}, closedQueue(incoming{update: &tg.UpdateNewMessage{Message: groupMessage(2, "x")}}), nil, WithErrorHandler(report))
	if err := panicking.Start(context.Background(), &recordingSink{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(reported) != 2 {
		t.Fatalf("reported = %d errors, want 2", len(reported))
	}
}

func TestDriverStartErrors(t *testing.T) {
	t.Parallel()

	driver := newDriver("tg", fakeSession{}, closedQueue(), NewPeerCache())
	if err := driver.Start(context.Background(), nil); err == nil {
		t.Fatal("Start(nil sink) should fail")
	}

	failing := newDriver("tg", fakeSession{err: errors.New("auth failed")}, closedQueue(), NewPeerCache())
	if err := failing.Start(context.Background(), &recordingSink{}); err == nil {
		t.Fatal("Start() should surface session errors")
	}

	canceled := newDriver("tg", fakeSession{err: context.Canceled}, closedQueue(), NewPeerCache())
	if err := canceled.Start(context.Background(), &recordingSink{}); err != nil {
		t.Fatalf("Start() on cancel = %v, want nil", err)
	}
}
