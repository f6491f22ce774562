// Package llm wires the configured providers behind the
// sandwich.LLMProviderRegistry service.
package llm

import (
	"errors"
	"fmt"
	"strings"

	"sandwich/pkg/sandwich"
)

var errUnknownProvider = errors.New("is not configured")

// Registry maps provider names to providers. It is read-only after
// construction.
type Registry struct {
	providers map[string]sandwich.LLMProvider
}

// NewRegistry copies providers under their trimmed names.
func NewRegistry(providers map[string]sandwich.LLMProvider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("new llm registry: empty providers")
	}

	registry := &Registry{providers: make(map[string]sandwich.LLMProvider, len(providers))}
	for key, provider := range providers {
		name := strings.TrimSpace(key)
		switch {
		case name == "":
			return nil, fmt.Errorf("new llm registry: empty provider key")
		case provider == nil:
			return nil, fmt.Errorf("new llm registry: provider %s is nil", name)
		}
		if _, taken := registry.providers[name]; taken {
			return nil, fmt.Errorf("new llm registry: duplicate provider key %s", name)
		}
		registry.providers[name] = provider
	}

	return registry, nil
}

// Resolve returns the provider configured under name.
func (r *Registry) Resolve(name string) (sandwich.LLMProvider, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return nil, fmt.Errorf("resolve llm provider: empty provider key")
	}
	provider, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("resolve llm provider %s: %w", key, errUnknownProvider)
	}

	return provider, nil
}

// ResolveImage returns the provider configured under name if it can
// also generate images.
func (r *Registry) ResolveImage(name string) (sandwich.ImageGenerator, error) {
	provider, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	generator, ok := provider.(sandwich.ImageGenerator)
	if !ok {
		return nil, fmt.Errorf("resolve image provider %s: does not generate images", strings.TrimSpace(name))
	}

	return generator, nil
}

var _ sandwich.LLMProviderRegistry = (*Registry)(nil)
