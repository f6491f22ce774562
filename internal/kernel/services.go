package kernel

import (
	"fmt"
	"sync"

	"sandwich/pkg/sandwich"
)

// services is the kernel's named singleton table.
type services struct {
	mu     sync.RWMutex
	values map[string]any
}

func newServices() *services {
	return &services{values: map[string]any{}}
}

func (s *services) Register(name string, service any) error {
	switch {
	case name == "":
		return fmt.Errorf("register service: empty name")
	case service == nil:
		return fmt.Errorf("register service %s: nil service", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.values[name]; taken {
		return fmt.Errorf("register service %s: %w", name, sandwich.ErrServiceAlreadyRegistered)
	}
	s.values[name] = service

	return nil
}

func (s *services) Resolve(name string) (any, error) {
	s.mu.RLock()
	service, ok := s.values[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resolve service %q: %w", name, sandwich.ErrServiceNotFound)
	}

	return service, nil
}

var _ sandwich.ServiceRegistry = (*services)(nil)
