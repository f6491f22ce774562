package sandwich

import (
	"context"
	"fmt"
)

// ServiceLogger is the canonical service registry key for the process *slog.Logger.
const ServiceLogger = "sandwich.logger"

// ServiceRegistry provides runtime dependency injection to modules and drivers.
type ServiceRegistry interface {
	// Register binds a singleton service value to a stable name.
	Register(name string, service any) error
	// Resolve returns a registered service by name.
	Resolve(name string) (any, error)
}

// ResolveAs resolves a service and casts it to the requested type.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}

	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: type assertion failed", name)
	}

	return typed, nil
}

// ServiceRestarter is the canonical service registry key for process restarts.
const ServiceRestarter = "sandwich.restarter"

// Restarter asks the hosting process to stop and start again in place.
type Restarter interface {
	// RequestRestart begins an orderly shutdown followed by a re-exec. It
	// returns once the request is accepted.
	RequestRestart(ctx context.Context, reason string) error
}
