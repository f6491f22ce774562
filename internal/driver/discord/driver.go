package discord

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"sandwich/pkg/sandwich"

	"github.com/bwmarrin/discordgo"
)

// gateway is the websocket half of *discordgo.Session.
type gateway interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithName sets the driver name, which is also the event source ID.
func WithName(name string) DriverOption {
	return func(d *Driver) {
		if name != "" {
			d.name = name
		}
	}
}

// WithPublishTimeout bounds how long one event may wait on the sink.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.publishTimeout = timeout
		}
	}
}

// WithErrorHandler receives publish failures, which happen on discordgo's
// handler goroutines and have no caller to return to.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(d *Driver) {
		if handler != nil {
			d.onError = handler
		}
	}
}

// Driver turns gateway message events into sandwich events.
type Driver struct {
	name           string
	publishTimeout time.Duration
	onError        func(context.Context, error)
	gateway        gateway

	run atomic.Pointer[driverRun]
}

// driverRun is the sink and context of the current Start call.
type driverRun struct {
	ctx  context.Context
	sink sandwich.EventSink
}

// NewDriver creates a driver over one gateway session.
func NewDriver(session gateway, options ...DriverOption) (*Driver, error) {
	if session == nil {
		return nil, fmt.Errorf("new discord driver: nil session")
	}

	d := &Driver{
		name:           DriverType,
		publishTimeout: 2 * time.Second,
		onError:        func(context.Context, error) {},
		gateway:        session,
	}
	for _, option := range options {
		option(d)
	}

	return d, nil
}

// Name returns the configured driver name.
func (d *Driver) Name() string {
	return d.name
}

// Start opens the gateway, publishes until ctx is done, then closes it.
func (d *Driver) Start(ctx context.Context, sink sandwich.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start discord driver: nil sink")
	}
	d.run.Store(&driverRun{ctx: ctx, sink: sink})

	for _, remove := range []func(){
		d.gateway.AddHandler(relay(d, mapMessageCreate)),
		d.gateway.AddHandler(relay(d, mapMessageUpdate)),
		d.gateway.AddHandler(relay(d, mapMessageDelete)),
	} {
		defer remove()
	}

	if err := d.gateway.Open(); err != nil {
		return fmt.Errorf("start discord driver: open gateway: %w", err)
	}
	<-ctx.Done()
	if err := d.gateway.Close(); err != nil {
		return fmt.Errorf("start discord driver: close gateway: %w", err)
	}

	return nil
}

// Shutdown is a no-op; Start closes the gateway when its context ends.
func (d *Driver) Shutdown(context.Context) error {
	return nil
}

// relay adapts a mapper into the handler signature discordgo dispatches on.
func relay[T any](d *Driver, mapEvent func(T) (*sandwich.Event, bool)) func(*discordgo.Session, T) {
	return func(_ *discordgo.Session, raw T) {
		if event, ok := mapEvent(raw); ok {
			d.publish(event)
		}
	}
}

func (d *Driver) publish(event *sandwich.Event) {
	run := d.run.Load()
	if run == nil || run.ctx.Err() != nil {
		return
	}
	event.Source = sandwich.EventSource{Platform: DriverPlatform, ID: d.name}

	ctx, cancel := context.WithTimeout(run.ctx, d.publishTimeout)
	defer cancel()
	if err := run.sink.Publish(ctx, event); err != nil {
		d.onError(run.ctx, fmt.Errorf("publish discord event %s: %w", event.Kind, err))
	}
}
