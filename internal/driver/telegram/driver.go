package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sandwich/pkg/sandwich"
)

const (
	// DriverType is the "type" of telegram entries in the drivers config.
	DriverType                        = "telegram"
	DriverPlatform  sandwich.Platform = sandwich.PlatformTelegram
	publishDeadline                   = 2 * time.Second
)

// runner runs fn while connected and logged in to Telegram.
type runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Driver publishes the messages a Telegram account sees.
type Driver struct {
	name    string
	client  runner
	queue   <-chan incoming
	mapper  eventMapper
	publish time.Duration
	report  func(context.Context, error)
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithPublishTimeout bounds how long one event may wait on the sink.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.publish = timeout
		}
	}
}

// WithErrorHandler receives publish failures and mapping panics. Neither
// stops the driver.
func WithErrorHandler(report func(context.Context, error)) DriverOption {
	return func(d *Driver) {
		if report != nil {
			d.report = report
		}
	}
}

func newDriver(name string, client runner, queue <-chan incoming, peers *PeerCache, options ...DriverOption) *Driver {
	if name == "" {
		name = DriverType
	}
	driver := &Driver{
		name:    name,
		client:  client,
		queue:   queue,
		mapper:  eventMapper{peers: peers, now: time.Now},
		publish: publishDeadline,
		report:  func(context.Context, error) {},
	}
	for _, option := range options {
		option(driver)
	}

	return driver
}

func (d *Driver) Name() string {
	return d.name
}

// Start runs the session and publishes until ctx ends or the update queue
// closes.
func (d *Driver) Start(ctx context.Context, sink sandwich.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start telegram driver: nil sink")
	}

	err := d.client.Run(ctx, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case item, ok := <-d.queue:
				if !ok {
					return nil
				}
				for _, event := range d.mapSafely(ctx, item) {
					d.forward(ctx, sink, event)
				}
			}
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("start telegram driver: %w", err)
	}

	return nil
}

func (d *Driver) Shutdown(context.Context) error {
	return nil
}

func (d *Driver) mapSafely(ctx context.Context, item incoming) (events []*sandwich.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.report(ctx, fmt.Errorf("map %s: panic: %v", item.update.TypeName(), recovered))
			events = nil
		}
	}()

	return d.mapper.events(item)
}

func (d *Driver) forward(ctx context.Context, sink sandwich.EventSink, event *sandwich.Event) {
	event.Source = sandwich.EventSource{Platform: DriverPlatform, ID: d.name}

	publishCtx, cancel := context.WithTimeout(ctx, d.publish)
	defer cancel()

	if err := sink.Publish(publishCtx, event); err != nil && ctx.Err() == nil {
		d.report(ctx, fmt.Errorf("publish telegram %s: %w", event.Kind, err))
	}
}
