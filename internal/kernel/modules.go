package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sandwich/pkg/sandwich"
)

// moduleHandle is what the kernel keeps per registered module. It is also
// the sandwich.ModuleRuntime handed to OnRegister.
type moduleHandle struct {
	module       sandwich.Module
	capabilities []sandwich.Capability
	services     sandwich.ServiceRegistry
	dispatcher   *dispatcher

	mu   sync.Mutex
	subs []sandwich.Subscription
}

func (h *moduleHandle) Services() sandwich.ServiceRegistry {
	return h.services
}

// Subscribe adds a handler owned by the module. The interest must fit
// inside one of the module's declared capabilities.
func (h *moduleHandle) Subscribe(
	_ context.Context,
	interest sandwich.InterestSet,
	spec sandwich.SubscriptionSpec,
	handler sandwich.EventHandler,
) (sandwich.Subscription, error) {
	name := h.module.Name()
	if spec.Name == "" {
		spec.Name = name + "-subscription"
	}
	if !coveredBy(h.capabilities, interest) {
		return nil, fmt.Errorf("module %s subscribe %s: interest outside declared capabilities", name, spec.Name)
	}

	sub, err := h.dispatcher.subscribe(interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}

	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()

	return sub, nil
}

// closeSubscriptions detaches every subscription the module holds. It is
// safe to call more than once.
func (h *moduleHandle) closeSubscriptions(ctx context.Context) error {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		errs = append(errs, sub.Close(ctx))
	}

	return errors.Join(errs...)
}

func coveredBy(capabilities []sandwich.Capability, interest sandwich.InterestSet) bool {
	for _, capability := range capabilities {
		if capability.Interest.Allows(interest) {
			return true
		}
	}

	return false
}

// checkModuleSpec rejects specs the kernel cannot wire unambiguously.
func checkModuleSpec(spec sandwich.ModuleSpec) error {
	capabilities := map[string]bool{}
	subscriptions := map[string]bool{}
	for index, handler := range spec.Handlers {
		capability := handler.Capability.Name
		switch {
		case capability == "":
			return fmt.Errorf("handler %d: capability has no name", index)
		case capabilities[capability]:
			return fmt.Errorf("handler %d: capability %s declared twice", index, capability)
		case handler.Handler == nil:
			return fmt.Errorf("handler %s: nil handler", capability)
		case handler.Subscription.Name != "" && subscriptions[handler.Subscription.Name]:
			return fmt.Errorf("handler %s: subscription %s declared twice", capability, handler.Subscription.Name)
		}
		capabilities[capability] = true
		if handler.Subscription.Name != "" {
			subscriptions[handler.Subscription.Name] = true
		}
	}

	commands := map[string]bool{}
	for index, command := range spec.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("command %d: %w", index, err)
		}
		key := commandKey(command.Name)
		if commands[key] {
			return fmt.Errorf("command %d: %s%s declared twice", index, sandwich.CommandPrefix, key)
		}
		commands[key] = true
	}

	return nil
}
