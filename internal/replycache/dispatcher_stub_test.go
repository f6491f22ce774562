package replycache

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"sandwich/pkg/sandwich"
)

type dispatchCall struct {
	op      sandwich.OutboundOperation
	id      string
	text    string
	embed   *sandwich.Embed
	hasFile bool
}

// captureDispatcher is an in-memory chat that hands out sequential message ids.
type captureDispatcher struct {
	mu      sync.Mutex
	nextID  int
	calls   []dispatchCall
	live    map[string]string
	deleted map[string]bool

	sendErr   error
	editErr   error
	deleteErr error

	// yield interleaves goroutines inside transport calls.
	yield bool
	// editGate, when set, blocks EditMessage until it is closed.
	editGate chan struct{}
	// editEntered is signaled when EditMessage starts.
	editEntered chan struct{}
	// deleteCalls receives the id of every DeleteMessage call.
	deleteCalls chan string
}

func newCaptureDispatcher() *captureDispatcher {
	return &captureDispatcher{
		live:    make(map[string]string),
		deleted: make(map[string]bool),
	}
}

func (d *captureDispatcher) SendMessage(
	_ context.Context,
	request sandwich.SendMessageRequest,
) (*sandwich.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	d.pause()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{
		op:      sandwich.OutboundOperationSendMessage,
		text:    request.Text,
		embed:   request.Embed.Clone(),
		hasFile: len(request.Attachments) > 0,
	})
	if d.sendErr != nil {
		return nil, d.sendErr
	}
	d.nextID++
	id := fmt.Sprintf("m%d", d.nextID)
	d.live[id] = request.Text

	return &sandwich.OutboundMessage{ID: id, Target: request.Target}, nil
}

func (d *captureDispatcher) EditMessage(_ context.Context, request sandwich.EditMessageRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	if d.editEntered != nil {
		d.editEntered <- struct{}{}
	}
	if d.editGate != nil {
		<-d.editGate
	}
	d.pause()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{
		op:    sandwich.OutboundOperationEditMessage,
		id:    request.MessageID,
		text:  request.Text,
		embed: request.Embed.Clone(),
	})
	if d.editErr != nil {
		return d.editErr
	}
	if _, exists := d.live[request.MessageID]; !exists {
		return &sandwich.OutboundError{
			Operation: sandwich.OutboundOperationEditMessage,
			Kind:      sandwich.OutboundErrorKindNotFound,
		}
	}
	d.live[request.MessageID] = request.Text

	return nil
}

func (d *captureDispatcher) DeleteMessage(_ context.Context, request sandwich.DeleteMessageRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	if d.deleteCalls != nil {
		d.deleteCalls <- request.MessageID
	}
	d.pause()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{
		op: sandwich.OutboundOperationDeleteMessage,
		id: request.MessageID,
	})
	if d.deleteErr != nil {
		return d.deleteErr
	}
	if _, exists := d.live[request.MessageID]; !exists {
		return &sandwich.OutboundError{
			Operation: sandwich.OutboundOperationDeleteMessage,
			Kind:      sandwich.OutboundErrorKindNotFound,
		}
	}
	delete(d.live, request.MessageID)
	d.deleted[request.MessageID] = true

	return nil
}

func (d *captureDispatcher) SetReaction(context.Context, sandwich.SetReactionRequest) error {
	return nil
}

func (d *captureDispatcher) pause() {
	if !d.yield {
		return
	}
	runtime.Gosched()
	time.Sleep(time.Microsecond)
}

func (d *captureDispatcher) snapshot() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]dispatchCall(nil), d.calls...)
}

func (d *captureDispatcher) countOp(op sandwich.OutboundOperation) int {
	count := 0
	for _, call := range d.snapshot() {
		if call.op == op {
			count++
		}
	}

	return count
}

func (d *captureDispatcher) isDeleted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.deleted[id]
}

// manualScheduler records DeleteAfter tasks and runs them on demand.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	delay     time.Duration
	fn        func()
	fired     bool
	cancelled bool
}

func (s *manualScheduler) schedule(delay time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &manualTask{delay: delay, fn: fn}
	s.tasks = append(s.tasks, task)

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if task.fired || task.cancelled {
			return false
		}
		task.cancelled = true

		return true
	}
}

func (s *manualScheduler) fire(index int) {
	s.mu.Lock()
	task := s.tasks[index]
	if task.fired || task.cancelled {
		s.mu.Unlock()
		return
	}
	task.fired = true
	s.mu.Unlock()

	task.fn()
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}
