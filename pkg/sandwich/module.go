package sandwich

import "context"

// EventHandler handles one event delivered by a subscription.
type EventHandler func(ctx context.Context, event *Event) error

// EventSink is where drivers hand events to the kernel.
type EventSink interface {
	Publish(ctx context.Context, event *Event) error
}

// ModuleHandler pairs a capability with the function that serves it.
type ModuleHandler struct {
	Capability Capability
	// Subscription overrides queue sizing; zero fields take kernel defaults.
	Subscription SubscriptionSpec
	Handler      EventHandler
}

// ModuleSpec is what a module declares up front. Commands enter the
// catalog before OnRegister; Handlers are subscribed after it returns.
type ModuleSpec struct {
	Handlers []ModuleHandler
	Commands []CommandSpec
}

// Capabilities lists the capability of every handler in declaration order.
func (s ModuleSpec) Capabilities() []Capability {
	out := make([]Capability, len(s.Handlers))
	for i := range s.Handlers {
		out[i] = s.Handlers[i].Capability
	}

	return out
}

// ModuleRuntime is the kernel as seen by a module while it registers.
type ModuleRuntime interface {
	Services() ServiceRegistry
	// Subscribe adds a handler beyond those in ModuleSpec. One of the module's
	// capabilities must cover interest.
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
}

// ModuleRegistrar is an optional hook run once per module at registration.
type ModuleRegistrar interface {
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

// Module is a unit of bot behavior. A handler may run on several workers
// at once.
type Module interface {
	Name() string
	Spec() ModuleSpec
	OnStart(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}

// Driver connects one chat platform account and publishes its traffic as
// events. Start blocks until ctx ends or the connection fails for good.
type Driver interface {
	Name() string
	Start(ctx context.Context, sink EventSink) error
	Shutdown(ctx context.Context) error
}
