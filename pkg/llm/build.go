package llm

import (
	"fmt"
	"maps"
	"slices"

	"sandwich/pkg/llm/config"
	"sandwich/pkg/llm/providers/gemini"
	"sandwich/pkg/llm/providers/openai"
	"sandwich/pkg/sandwich"
)

type providerBuilder func(config.ProviderProfile) (sandwich.LLMProvider, error)

var builders = map[string]providerBuilder{
	config.ProviderTypeOpenAI: buildOpenAI,
	config.ProviderTypeGemini: buildGemini,
}

// NewRegistryFromConfig builds one provider per configured profile.
func NewRegistryFromConfig(cfg config.Config) (*Registry, error) {
	providers := make(map[string]sandwich.LLMProvider, len(cfg.Providers))
	for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
		profile := cfg.Providers[name]
		build, ok := builders[profile.Type]
		if !ok {
			return nil, fmt.Errorf("build llm provider %s: unsupported type %q", name, profile.Type)
		}
		provider, err := build(profile)
		if err != nil {
			return nil, fmt.Errorf("build llm provider %s: %w", name, err)
		}
		providers[name] = provider
	}

	return NewRegistry(providers)
}

func buildOpenAI(profile config.ProviderProfile) (sandwich.LLMProvider, error) {
	cfg := openai.ProviderConfig{APIKey: profile.APIKey, BaseURL: profile.BaseURL}
	if options := profile.OpenAI; options != nil {
		cfg.Organization = options.Organization
		cfg.Project = options.Project
		cfg.MaxRetries = options.MaxRetries
	}

	provider, err := openai.New(cfg)
	if err != nil {
		return nil, err
	}

	return provider, nil
}

func buildGemini(profile config.ProviderProfile) (sandwich.LLMProvider, error) {
	cfg := gemini.ProviderConfig{APIKey: profile.APIKey, BaseURL: profile.BaseURL}
	if options := profile.Gemini; options != nil {
		cfg.APIVersion = options.APIVersion
		cfg.GoogleSearch = options.GoogleSearch
		cfg.ThinkingBudget = options.ThinkingBudget
	}

	provider, err := gemini.New(cfg)
	if err != nil {
		return nil, err
	}

	return provider, nil
}
