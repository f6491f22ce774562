package replycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sandwich/pkg/sandwich"
)

// ErrClosed is returned for untracked replies with DeleteAfter once Shutdown
// has run, since their deletion could no longer be scheduled.
var ErrClosed = errors.New("reply cache closed")

// Scheduler runs fn once after delay and returns a func that cancels the run.
// The cancel func reports true only when it prevented fn from running.
type Scheduler func(delay time.Duration, fn func()) (cancel func() bool)

// Option mutates cache construction configuration.
type Option func(*Cache)

// WithScheduler replaces the timer source used for DeleteAfter.
func WithScheduler(scheduler Scheduler) Option {
	return func(cache *Cache) {
		if scheduler != nil {
			cache.schedule = scheduler
		}
	}
}

// WithLogger receives best-effort delete failures other than not-found.
func WithLogger(logger *slog.Logger) Option {
	return func(cache *Cache) {
		if logger != nil {
			cache.logger = logger
		}
	}
}

// Cache is the in-memory edit-or-resend reply tracker.
//
// Operations on one request id are serialized by a per-key lock held across
// the transport call. The record map is guarded separately and never held
// across transport calls, so distinct request ids proceed concurrently.
type Cache struct {
	dispatcher sandwich.SinkDispatcher
	locks      *keyLocker
	schedule   Scheduler
	logger     *slog.Logger

	mu      sync.Mutex
	records map[string]sandwich.ReplyRecord

	timerMu   sync.Mutex
	timers    map[uint64]func() bool
	nextTimer uint64
	closed    bool
	pending   sync.WaitGroup

	lifetime context.Context
	stop     context.CancelFunc
}

// New creates an empty reply cache sending through dispatcher.
func New(dispatcher sandwich.SinkDispatcher, options ...Option) (*Cache, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("new reply cache: nil dispatcher")
	}

	lifetime, stop := context.WithCancel(context.Background())
	cache := &Cache{
		dispatcher: dispatcher,
		locks:      newKeyLocker(),
		schedule:   afterFunc,
		logger:     slog.New(slog.DiscardHandler),
		records:    make(map[string]sandwich.ReplyRecord),
		timers:     make(map[uint64]func() bool),
		lifetime:   lifetime,
		stop:       stop,
	}
	for _, option := range options {
		option(cache)
	}

	return cache, nil
}

func afterFunc(delay time.Duration, fn func()) func() bool {
	return time.AfterFunc(delay, fn).Stop
}

// Reply creates, edits or clears the tracked reply for request.RequestID.
func (c *Cache) Reply(ctx context.Context, request sandwich.ReplyRequest) (*sandwich.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}
	if request.Embed.IsEmpty() {
		request.Embed = nil
	}
	if request.ForceNew {
		return c.sendUntracked(ctx, request)
	}

	unlock := c.locks.lock(request.RequestID)
	defer unlock()

	record, exists := c.load(request.RequestID)
	switch {
	case !exists:
		return c.sendTracked(ctx, request)
	case request.IsEmpty():
		return nil, c.clear(ctx, record)
	default:
		return c.edit(ctx, record, request)
	}
}

// Discard forgets the reply tracked for requestID and deletes it best effort.
// It is a no-op without transport calls when nothing is tracked.
func (c *Cache) Discard(ctx context.Context, requestID string) {
	if requestID == "" {
		return
	}

	unlock := c.locks.lock(requestID)
	defer unlock()

	record, exists := c.load(requestID)
	if !exists {
		return
	}

	c.deleteBestEffort(ctx, record.Message, "discard")
	c.remove(requestID)
}

// Lookup returns a copy of the record tracked for requestID.
func (c *Cache) Lookup(requestID string) (sandwich.ReplyRecord, bool) {
	record, exists := c.load(requestID)
	if !exists {
		return sandwich.ReplyRecord{}, false
	}
	record.Embed = record.Embed.Clone()
	record.Message = *cloneMessage(&record.Message)

	return record, true
}

// Len reports how many replies are tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.records)
}

// Shutdown cancels pending DeleteAfter timers and waits for scheduled
// deletions already running. Tracked records are kept. Afterwards, ForceNew
// replies with DeleteAfter fail with ErrClosed before anything is sent.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.timerMu.Lock()
	c.closed = true
	timers := c.timers
	c.timers = make(map[uint64]func() bool)
	c.timerMu.Unlock()

	for _, cancel := range timers {
		if cancel() {
			c.pending.Done()
		}
	}

	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.stop()
		return nil
	case <-ctx.Done():
		c.stop()
		<-done
		return fmt.Errorf("shutdown reply cache: %w", ctx.Err())
	}
}

func (c *Cache) sendTracked(ctx context.Context, request sandwich.ReplyRequest) (*sandwich.OutboundMessage, error) {
	if request.IsEmpty() && len(request.Attachments) == 0 {
		return nil, nil
	}

	message, err := c.dispatcher.SendMessage(ctx, sendRequest(request))
	if err != nil {
		return nil, fmt.Errorf("reply %s: send: %w", request.RequestID, err)
	}
	if message == nil {
		return nil, fmt.Errorf("reply %s: send: dispatcher returned no message", request.RequestID)
	}

	c.store(sandwich.ReplyRecord{
		RequestID: request.RequestID,
		Message:   *message,
		Text:      request.Text,
		Embed:     request.Embed.Clone(),
	})

	return cloneMessage(message), nil
}

func (c *Cache) clear(ctx context.Context, record sandwich.ReplyRecord) error {
	err := c.dispatcher.DeleteMessage(ctx, sandwich.DeleteMessageRequest{
		Target:    record.Message.Target,
		MessageID: record.Message.ID,
	})
	if err != nil && !sandwich.IsOutboundNotFound(err) {
		return fmt.Errorf("reply %s: delete: %w", record.RequestID, err)
	}
	c.remove(record.RequestID)

	return nil
}

func (c *Cache) edit(
	ctx context.Context,
	record sandwich.ReplyRecord,
	request sandwich.ReplyRequest,
) (*sandwich.OutboundMessage, error) {
	text := request.Text
	if text == "" {
		text = record.Text
	}

	err := c.dispatcher.EditMessage(ctx, sandwich.EditMessageRequest{
		Target:    record.Message.Target,
		MessageID: record.Message.ID,
		Text:      text,
		Embed:     request.Embed.Clone(),
	})
	if err != nil {
		return nil, fmt.Errorf("reply %s: edit: %w", record.RequestID, err)
	}

	record.Text = text
	record.Embed = request.Embed.Clone()
	c.store(record)

	return cloneMessage(&record.Message), nil
}

func (c *Cache) sendUntracked(ctx context.Context, request sandwich.ReplyRequest) (*sandwich.OutboundMessage, error) {
	if request.DeleteAfter > 0 && c.isClosed() {
		return nil, fmt.Errorf("reply untracked: %w", ErrClosed)
	}

	message, err := c.dispatcher.SendMessage(ctx, sendRequest(request))
	if err != nil {
		return nil, fmt.Errorf("reply untracked: send: %w", err)
	}
	if message == nil {
		return nil, fmt.Errorf("reply untracked: send: dispatcher returned no message")
	}
	if request.DeleteAfter > 0 && !c.scheduleDelete(*message, request.DeleteAfter) {
		// Shutdown ran while the message was in flight.
		c.deleteBestEffort(ctx, *message, "expire")
	}

	return cloneMessage(message), nil
}

func (c *Cache) isClosed() bool {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	return c.closed
}

// scheduleDelete removes message after delay unless Shutdown runs first.
// It reports false without scheduling once the cache is closed.
func (c *Cache) scheduleDelete(message sandwich.OutboundMessage, delay time.Duration) bool {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.closed {
		return false
	}

	c.nextTimer++
	id := c.nextTimer
	c.pending.Add(1)
	c.timers[id] = c.schedule(delay, func() {
		defer c.pending.Done()

		c.timerMu.Lock()
		_, live := c.timers[id]
		delete(c.timers, id)
		c.timerMu.Unlock()
		if !live {
			return
		}

		c.deleteBestEffort(c.lifetime, message, "expire")
	})

	return true
}

// deleteBestEffort deletes message and logs failures other than not-found.
func (c *Cache) deleteBestEffort(ctx context.Context, message sandwich.OutboundMessage, reason string) {
	err := c.dispatcher.DeleteMessage(ctx, sandwich.DeleteMessageRequest{
		Target:    message.Target,
		MessageID: message.ID,
	})
	if err == nil || sandwich.IsOutboundNotFound(err) {
		return
	}

	c.logger.WarnContext(ctx, "reply cache delete failed",
		"reason", reason,
		"message_id", message.ID,
		"error", err,
	)
}

func (c *Cache) load(requestID string) (sandwich.ReplyRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, exists := c.records[requestID]

	return record, exists
}

func (c *Cache) store(record sandwich.ReplyRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records[record.RequestID] = record
}

func (c *Cache) remove(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.records, requestID)
}

func sendRequest(request sandwich.ReplyRequest) sandwich.SendMessageRequest {
	return sandwich.SendMessageRequest{
		Target:           request.Target,
		Text:             request.Text,
		Embed:            request.Embed.Clone(),
		Attachments:      append([]sandwich.Attachment(nil), request.Attachments...),
		ReplyToMessageID: request.ReplyToMessageID,
	}
}

func cloneMessage(message *sandwich.OutboundMessage) *sandwich.OutboundMessage {
	cloned := *message
	if message.Target.Sink != nil {
		sink := *message.Target.Sink
		cloned.Target.Sink = &sink
	}

	return &cloned
}

var _ sandwich.ReplyCache = (*Cache)(nil)
