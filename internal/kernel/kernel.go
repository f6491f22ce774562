// Package kernel hosts modules and drivers: it routes driver events to
// module handlers and owns the process lifecycle between them.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"sandwich/pkg/sandwich"
)

// Kernel wires modules and drivers together. Register everything, then
// call Run once.
type Kernel struct {
	settings   settings
	services   *services
	commands   *commandTable
	dispatcher *dispatcher

	mu      sync.Mutex
	modules []*moduleHandle
	drivers []sandwich.Driver

	running atomic.Bool
}

// New builds an empty kernel. The command catalog service is registered
// up front.
func New(options ...Option) *Kernel {
	k := &Kernel{
		settings: newSettings(options),
		services: newServices(),
		commands: newCommandTable(),
	}
	k.dispatcher = newDispatcher(&k.settings)
	_ = k.services.Register(sandwich.ServiceCommandCatalog, k.commands)

	return k
}

// Services exposes the registry modules resolve their dependencies from.
func (k *Kernel) Services() sandwich.ServiceRegistry {
	return k.services
}

// RegisterService adds a named singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	return k.services.Register(name, service)
}

// RegisterDriver adds a driver. Drivers start in registration order.
func (k *Kernel) RegisterDriver(driver sandwich.Driver) error {
	if driver == nil || driver.Name() == "" {
		return fmt.Errorf("register driver: driver must be non-nil and named")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, existing := range k.drivers {
		if existing.Name() == driver.Name() {
			return fmt.Errorf("register driver %s: %w", driver.Name(), sandwich.ErrDriverAlreadyRegistered)
		}
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

// RegisterModule checks the module's spec and required services, claims its
// commands, runs OnRegister and subscribes its declared handlers. A failure
// at any step leaves no trace of the module behind.
func (k *Kernel) RegisterModule(ctx context.Context, module sandwich.Module) error {
	if module == nil || module.Name() == "" {
		return fmt.Errorf("register module: module must be non-nil and named")
	}
	name := module.Name()
	spec := module.Spec()
	if err := checkModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	for _, capability := range spec.Capabilities() {
		for _, service := range capability.RequiredServices {
			if _, err := k.services.Resolve(service); err != nil {
				return fmt.Errorf("register module %s: capability %s: %w", name, capability.Name, err)
			}
		}
	}

	handle := &moduleHandle{
		module:       module,
		capabilities: spec.Capabilities(),
		services:     k.services,
		dispatcher:   k.dispatcher,
	}
	if err := k.adopt(handle); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	if err := k.commands.claim(name, spec.Commands); err != nil {
		k.abandon(ctx, handle)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.settings.hookTimeout)
	defer cancel()

	if registrar, ok := module.(sandwich.ModuleRegistrar); ok {
		err := guard("OnRegister", func() error { return registrar.OnRegister(hookCtx, handle) })
		if err != nil {
			k.abandon(ctx, handle)
			return fmt.Errorf("register module %s: %w", name, err)
		}
	}

	for index, declared := range spec.Handlers {
		subscription := declared.Subscription
		if subscription.Name == "" {
			subscription.Name = fmt.Sprintf("%s-handler-%d", name, index+1)
		}
		_, err := handle.Subscribe(hookCtx, declared.Capability.Interest, subscription, declared.Handler)
		if err != nil {
			k.abandon(ctx, handle)
			return fmt.Errorf("register module %s: capability %s: %w", name, declared.Capability.Name, err)
		}
	}

	return nil
}

func (k *Kernel) adopt(handle *moduleHandle) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, existing := range k.modules {
		if existing.module.Name() == handle.module.Name() {
			return sandwich.ErrModuleAlreadyRegistered
		}
	}
	k.modules = append(k.modules, handle)

	return nil
}

// abandon undoes a partial RegisterModule.
func (k *Kernel) abandon(ctx context.Context, handle *moduleHandle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.settings.hookTimeout)
	defer cancel()

	if err := handle.closeSubscriptions(ctx); err != nil {
		k.settings.report(ctx, "abandon module "+handle.module.Name(), err)
	}
	k.commands.release(handle.module.Name())

	k.mu.Lock()
	k.modules = slices.DeleteFunc(k.modules, func(m *moduleHandle) bool { return m == handle })
	k.mu.Unlock()
}

// Run starts the modules, then the drivers, and blocks until ctx ends or a
// driver fails. Teardown always runs before Run returns; cancellation of
// ctx is not reported as an error.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.running.CompareAndSwap(false, true) {
		return fmt.Errorf("kernel run: already running")
	}
	defer k.running.Store(false)

	k.mu.Lock()
	modules := slices.Clone(k.modules)
	drivers := slices.Clone(k.drivers)
	k.mu.Unlock()

	for _, handle := range modules {
		if err := k.hook(ctx, "OnStart", handle.module.OnStart); err != nil {
			return fmt.Errorf("start module %s: %w", handle.module.Name(), err)
		}
	}

	runErr := k.superviseDrivers(ctx, drivers)
	shutdownErr := k.teardown(ctx, modules, drivers)

	return errors.Join(runErr, shutdownErr)
}

// superviseDrivers runs every driver until ctx ends or one of them fails.
// Once ctx ends, drivers get the shutdown timeout to return.
func (k *Kernel) superviseDrivers(ctx context.Context, drivers []sandwich.Driver) error {
	sink := &commandRouter{
		next:     k.dispatcher,
		commands: k.commands,
		services: k.services,
		report:   k.settings.report,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, driver := range drivers {
		group.Go(func() error {
			err := guard("Start", func() error { return driver.Start(groupCtx, sink) })
			if err != nil && !canceled(err) {
				return fmt.Errorf("run driver %s: %w", driver.Name(), err)
			}
			return nil
		})
	}

	finished := make(chan error, 1)
	go func() { finished <- group.Wait() }()

	select {
	case err := <-finished:
		return err
	case <-ctx.Done():
	}

	timer := time.NewTimer(k.settings.shutdownTimeout)
	defer timer.Stop()
	select {
	case err := <-finished:
		return err
	case <-timer.C:
		k.settings.report(ctx, "run drivers", fmt.Errorf("drivers still running after %s", k.settings.shutdownTimeout))
		return nil
	}
}

// teardown shuts drivers down, then modules, both newest first, then the
// dispatcher. It runs on a fresh deadline even when ctx is already done.
func (k *Kernel) teardown(ctx context.Context, modules []*moduleHandle, drivers []sandwich.Driver) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.settings.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, driver := range slices.Backward(drivers) {
		if err := guard("Shutdown", func() error { return driver.Shutdown(ctx) }); err != nil {
			errs = append(errs, fmt.Errorf("shutdown driver %s: %w", driver.Name(), err))
		}
	}
	for _, handle := range slices.Backward(modules) {
		name := handle.module.Name()
		if err := handle.closeSubscriptions(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown module %s subscriptions: %w", name, err))
		}
		if err := k.hook(ctx, "OnShutdown", handle.module.OnShutdown); err != nil {
			errs = append(errs, fmt.Errorf("shutdown module %s: %w", name, err))
		}
	}
	if err := k.dispatcher.close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("kernel shutdown: %w", err)
	}

	return nil
}

func (k *Kernel) hook(ctx context.Context, scope string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, k.settings.hookTimeout)
	defer cancel()

	return guard(scope, func() error { return fn(ctx) })
}
