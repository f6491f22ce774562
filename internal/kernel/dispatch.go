package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"sandwich/pkg/sandwich"
)

var errDispatcherClosed = errors.New("dispatcher closed")

// dispatcher fans events out to subscriptions. Each subscription owns a
// bounded queue and its own workers, so a slow handler only backs up its
// own queue.
type dispatcher struct {
	settings *settings

	mu     sync.RWMutex
	closed bool
	serial uint64
	active map[uint64]*subscription
}

func newDispatcher(s *settings) *dispatcher {
	return &dispatcher{settings: s, active: map[uint64]*subscription{}}
}

// Publish queues event on every subscription whose interest matches.
// Dropped events are reported in the background rather than returned.
func (d *dispatcher) Publish(ctx context.Context, event *sandwich.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return fmt.Errorf("publish %s: %w", event.Kind, errDispatcherClosed)
	}
	var targets []*subscription
	for _, sub := range d.active {
		if sub.interest.Matches(event) {
			targets = append(targets, sub)
		}
	}
	d.mu.RUnlock()

	var failed []error
	for _, sub := range targets {
		err := sub.offer(ctx, event)
		switch {
		case err == nil:
		case errors.Is(err, sandwich.ErrEventDropped), errors.Is(err, sandwich.ErrSubscriptionClosed):
			d.settings.report(ctx, sub.spec.Name, err)
		default:
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("publish %s: %w", event.Kind, errors.Join(failed...))
	}

	return nil
}

func (d *dispatcher) subscribe(
	interest sandwich.InterestSet,
	spec sandwich.SubscriptionSpec,
	handler sandwich.EventHandler,
) (*subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}
	switch spec.Overflow {
	case "", sandwich.OverflowDrop, sandwich.OverflowWait:
	default:
		return nil, fmt.Errorf("subscribe %s: %w: overflow policy %q", spec.Name, sandwich.ErrInvalidSubscription, spec.Overflow)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, errDispatcherClosed)
	}

	d.serial++
	sub := &subscription{
		id:       d.serial,
		owner:    d,
		interest: cloneInterest(interest),
		spec:     d.withDefaults(spec, d.serial),
		handler:  handler,
		stopped:  make(chan struct{}),
	}
	sub.queue = make(chan *sandwich.Event, sub.spec.Buffer)
	sub.run()
	d.active[sub.id] = sub

	return sub, nil
}

// close stops accepting events and drains every subscription.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	subs := make([]*subscription, 0, len(d.active))
	for _, sub := range d.active {
		subs = append(subs, sub)
	}
	clear(d.active)
	d.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		errs = append(errs, sub.stop(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close dispatcher: %w", err)
	}

	return nil
}

func (d *dispatcher) forget(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.active[id]
	delete(d.active, id)

	return ok
}

func (d *dispatcher) withDefaults(spec sandwich.SubscriptionSpec, id uint64) sandwich.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", id)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = d.settings.queueSize
	}
	if spec.Workers <= 0 {
		spec.Workers = d.settings.workers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = d.settings.handlerTimeout
	}
	if spec.Overflow == "" {
		spec.Overflow = sandwich.OverflowDrop
	}

	return spec
}

// subscription is one handler with its queue and workers.
type subscription struct {
	id       uint64
	owner    *dispatcher
	interest sandwich.InterestSet
	spec     sandwich.SubscriptionSpec
	handler  sandwich.EventHandler

	queue    chan *sandwich.Event
	stopped  chan struct{}
	stopOnce sync.Once
	workers  sync.WaitGroup
}

func (s *subscription) Name() string {
	return s.spec.Name
}

// Close detaches the subscription and waits for its workers to exit.
func (s *subscription) Close(ctx context.Context) error {
	s.owner.forget(s.id)
	if err := s.stop(ctx); err != nil {
		return fmt.Errorf("close subscription %s: %w", s.spec.Name, err)
	}

	return nil
}

func (s *subscription) offer(ctx context.Context, event *sandwich.Event) error {
	select {
	case <-s.stopped:
		return fmt.Errorf("offer to %s: %w", s.spec.Name, sandwich.ErrSubscriptionClosed)
	default:
	}

	if s.spec.Overflow == sandwich.OverflowWait {
		select {
		case s.queue <- event:
			return nil
		case <-s.stopped:
			return fmt.Errorf("offer to %s: %w", s.spec.Name, sandwich.ErrSubscriptionClosed)
		case <-ctx.Done():
			return fmt.Errorf("offer to %s: %w", s.spec.Name, ctx.Err())
		}
	}

	select {
	case s.queue <- event:
		return nil
	default:
		return fmt.Errorf("offer to %s: %w", s.spec.Name, sandwich.ErrEventDropped)
	}
}

func (s *subscription) run() {
	ctx, cancel := context.WithCancel(context.Background())
	for worker := range s.spec.Workers {
		s.workers.Go(func() {
			for {
				select {
				case <-s.stopped:
					return
				case event := <-s.queue:
					if err := s.deliver(ctx, worker, event); err != nil {
						s.owner.settings.report(ctx, s.spec.Name, err)
					}
				}
			}
		})
	}
	go func() {
		<-s.stopped
		cancel()
	}()
}

func (s *subscription) deliver(ctx context.Context, worker int, event *sandwich.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.spec.HandlerTimeout)
	defer cancel()

	scope := fmt.Sprintf("%s worker %d", s.spec.Name, worker)

	return guard(scope, func() error {
		return s.handler(ctx, event)
	})
}

// stop halts the workers; queued events that were not picked up are lost.
func (s *subscription) stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopped) })

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", s.spec.Name, ctx.Err())
	}
}

func cloneInterest(interest sandwich.InterestSet) sandwich.InterestSet {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.Commands = slices.Clone(interest.Commands)

	return interest
}
