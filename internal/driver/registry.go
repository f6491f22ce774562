// Package driver builds the configured chat drivers and routes outbound
// operations to the driver instance a target belongs to.
package driver

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"sandwich/pkg/sandwich"
)

// Definition is one entry of the "drivers" config list.
type Definition struct {
	Name    string
	Type    string
	Enabled bool
	// Config is the entry's raw "config" object, passed to the builder as is.
	Config []byte
}

// BuildFunc builds the inbound driver and outbound dispatcher of one
// driver instance. A nil dispatcher means the instance cannot send.
type BuildFunc func(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (sandwich.EventSource, sandwich.Driver, sandwich.SinkDispatcher, error)

// Descriptor registers one driver type.
type Descriptor struct {
	Type     string
	Platform sandwich.Platform
	Build    BuildFunc
}

// Runtime is one built driver instance.
type Runtime struct {
	Source         sandwich.EventSource
	Driver         sandwich.Driver
	SinkDispatcher sandwich.SinkDispatcher
}

// Registry knows how to build each supported driver type.
type Registry struct {
	descriptors map[string]Descriptor
}

func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	registry := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, descriptor := range descriptors {
		switch {
		case descriptor.Type == "":
			return nil, fmt.Errorf("new driver registry: empty type")
		case descriptor.Platform == "":
			return nil, fmt.Errorf("new driver registry: type %s: empty platform", descriptor.Type)
		case descriptor.Build == nil:
			return nil, fmt.Errorf("new driver registry: type %s: nil build func", descriptor.Type)
		}
		if _, taken := registry.descriptors[descriptor.Type]; taken {
			return nil, fmt.Errorf("new driver registry: duplicate type %s", descriptor.Type)
		}
		registry.descriptors[descriptor.Type] = descriptor
	}

	return registry, nil
}

// Types lists the supported driver types in sorted order.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.descriptors))
}

func (r *Registry) PlatformForType(driverType string) (sandwich.Platform, error) {
	descriptor, ok := r.descriptors[driverType]
	if !ok {
		return "", fmt.Errorf("unsupported driver type %q", driverType)
	}

	return descriptor.Platform, nil
}

// BuildEnabled builds every enabled definition in order. Instance names
// must be unique among enabled definitions; an instance without a source
// ID is identified by its name.
func (r *Registry) BuildEnabled(definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	var runtimes []Runtime
	names := make(map[string]bool, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if names[definition.Name] {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		names[definition.Name] = true

		runtime, err := r.build(definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s: %w", definition.Name, err)
		}
		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

func (r *Registry) build(definition Definition, logger *slog.Logger) (Runtime, error) {
	descriptor, ok := r.descriptors[definition.Type]
	if !ok {
		return Runtime{}, fmt.Errorf("unsupported driver type %q", definition.Type)
	}

	source, inbound, outbound, err := descriptor.Build(definition.Name, logger, definition.Config)
	if err != nil {
		return Runtime{}, err
	}
	if inbound == nil {
		return Runtime{}, fmt.Errorf("%s builder returned no driver", definition.Type)
	}
	if source.Platform == "" {
		source.Platform = descriptor.Platform
	}
	if source.ID == "" {
		source.ID = definition.Name
	}

	return Runtime{Source: source, Driver: inbound, SinkDispatcher: outbound}, nil
}
