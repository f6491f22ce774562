// Package config parses and validates the llm section of the bot config:
// provider credentials plus the profiles used by !askai and !genimage.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"text/template"
	"time"
)

// Provider types.
const (
	ProviderTypeOpenAI = "openai"
	ProviderTypeGemini = "gemini"
)

// Metadata keys the askai module fills in itself.
var reservedMetadataKeys = []string{"command", "provider", "conversation_id"}

var (
	imageSizePattern  = regexp.MustCompile(`^[1-9][0-9]*x[1-9][0-9]*$`)
	apiVersionPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// Config is the parsed llm section.
type Config struct {
	// RequestTimeout is the default and the ceiling for profile timeouts.
	RequestTimeout time.Duration
	Providers      map[string]ProviderProfile
	AskAI          TextProfile
	// GenImage is disabled when its Provider is empty.
	GenImage ImageProfile
}

// ProviderProfile holds the credentials of one named provider.
type ProviderProfile struct {
	Type    string
	APIKey  string
	BaseURL string
	OpenAI  *OpenAIOptions
	Gemini  *GeminiOptions
}

// OpenAIOptions are only valid on openai providers.
type OpenAIOptions struct {
	Organization string
	Project      string
	MaxRetries   *int
}

// GeminiOptions are only valid on gemini providers.
type GeminiOptions struct {
	APIVersion     string
	GoogleSearch   bool
	ThinkingBudget *int
}

// TextProfile describes how !askai calls its provider.
type TextProfile struct {
	Provider string
	Model    string
	// SystemPromptTemplate is a text/template rendered for every request.
	SystemPromptTemplate string
	TemplateVariables    map[string]string
	MaxOutputTokens      int
	Temperature          float64
	// CostPer1KTokens is quoted back to users in dollars.
	CostPer1KTokens float64
	RequestTimeout  time.Duration
	RequestMetadata map[string]string
}

// ImageProfile describes how !genimage calls its provider.
type ImageProfile struct {
	Provider       string
	Model          string
	Size           string
	RequestTimeout time.Duration
}

// Enabled reports whether !genimage should be offered.
func (p ImageProfile) Enabled() bool {
	return strings.TrimSpace(p.Provider) != ""
}

// duration decodes Go duration strings such as "90s".
type duration time.Duration

func (d *duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed <= 0 {
		return fmt.Errorf("duration %q must be positive", raw)
	}
	*d = duration(parsed)

	return nil
}

type document struct {
	RequestTimeout *duration                   `json:"request_timeout"`
	Providers      map[string]providerDocument `json:"providers"`
	AskAI          textDocument                `json:"askai"`
	GenImage       *imageDocument              `json:"genimage"`
}

type providerDocument struct {
	Type    string `json:"type"`
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	OpenAI  *struct {
		Organization string `json:"organization"`
		Project      string `json:"project"`
		MaxRetries   *int   `json:"max_retries"`
	} `json:"openai"`
	Gemini *struct {
		APIVersion     string `json:"api_version"`
		GoogleSearch   bool   `json:"google_search"`
		ThinkingBudget *int   `json:"thinking_budget"`
	} `json:"gemini"`
}

type textDocument struct {
	Provider             string            `json:"provider"`
	Model                string            `json:"model"`
	SystemPromptTemplate string            `json:"system_prompt_template"`
	TemplateVariables    map[string]string `json:"template_variables"`
	MaxOutputTokens      *int              `json:"max_output_tokens"`
	Temperature          *float64          `json:"temperature"`
	CostPer1KTokens      *float64          `json:"cost_per_1k_tokens"`
	RequestTimeout       *duration         `json:"request_timeout"`
	RequestMetadata      map[string]string `json:"request_metadata"`
}

type imageDocument struct {
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Size           string    `json:"size"`
	RequestTimeout *duration `json:"request_timeout"`
}

// Parse decodes one JSON llm section, fills defaults and validates it.
// Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	var doc document
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("parse llm config: %w", err)
	}
	if decoder.More() {
		return Config{}, fmt.Errorf("parse llm config: trailing data after document")
	}

	cfg := Config{
		RequestTimeout: orDefault(doc.RequestTimeout, 90*time.Second),
		Providers:      make(map[string]ProviderProfile, len(doc.Providers)),
	}
	for key, raw := range doc.Providers {
		cfg.Providers[strings.TrimSpace(key)] = raw.profile()
	}

	cfg.AskAI = TextProfile{
		Provider:             strings.TrimSpace(doc.AskAI.Provider),
		Model:                strings.TrimSpace(doc.AskAI.Model),
		SystemPromptTemplate: strings.TrimSpace(doc.AskAI.SystemPromptTemplate),
		TemplateVariables:    doc.AskAI.TemplateVariables,
		MaxOutputTokens:      orValue(doc.AskAI.MaxOutputTokens, 2048),
		Temperature:          orValue(doc.AskAI.Temperature, 0.9),
		CostPer1KTokens:      orValue(doc.AskAI.CostPer1KTokens, 0.02),
		RequestTimeout:       orDefault(doc.AskAI.RequestTimeout, cfg.RequestTimeout),
		RequestMetadata:      doc.AskAI.RequestMetadata,
	}
	if image := doc.GenImage; image != nil {
		cfg.GenImage = ImageProfile{
			Provider:       strings.TrimSpace(image.Provider),
			Model:          strings.TrimSpace(image.Model),
			Size:           strings.TrimSpace(image.Size),
			RequestTimeout: orDefault(image.RequestTimeout, cfg.RequestTimeout),
		}
		if cfg.GenImage.Size == "" {
			cfg.GenImage.Size = "1024x1024"
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (p providerDocument) profile() ProviderProfile {
	profile := ProviderProfile{
		Type:    strings.ToLower(strings.TrimSpace(p.Type)),
		APIKey:  strings.TrimSpace(p.APIKey),
		BaseURL: strings.TrimSpace(p.BaseURL),
	}
	if p.OpenAI != nil {
		profile.OpenAI = &OpenAIOptions{
			Organization: strings.TrimSpace(p.OpenAI.Organization),
			Project:      strings.TrimSpace(p.OpenAI.Project),
			MaxRetries:   p.OpenAI.MaxRetries,
		}
	}
	if p.Gemini != nil {
		profile.Gemini = &GeminiOptions{
			APIVersion:     strings.TrimSpace(p.Gemini.APIVersion),
			GoogleSearch:   p.Gemini.GoogleSearch,
			ThinkingBudget: p.Gemini.ThinkingBudget,
		}
	}

	return profile
}

// Validate reports every problem found, joined, under one prefix.
func (cfg Config) Validate() error {
	var problems []error
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if cfg.RequestTimeout <= 0 {
		report("request_timeout must be positive")
	}
	if len(cfg.Providers) == 0 {
		report("providers: at least one provider is required")
	}
	for key, profile := range cfg.Providers {
		if key == "" {
			report("providers: empty provider name")
			continue
		}
		if err := profile.validate(); err != nil {
			report("providers[%s]: %w", key, err)
		}
	}

	text := cfg.AskAI
	switch {
	case text.Provider == "":
		report("askai.provider is required")
	case !cfg.hasProvider(text.Provider):
		report("askai.provider %q is not configured", text.Provider)
	}
	if text.Model == "" {
		report("askai.model is required")
	}
	if text.MaxOutputTokens < 0 || text.Temperature < 0 || text.CostPer1KTokens < 0 {
		report("askai: max_output_tokens, temperature and cost_per_1k_tokens must not be negative")
	}
	if text.RequestTimeout <= 0 || text.RequestTimeout > cfg.RequestTimeout {
		report("askai.request_timeout must be within (0, %s]", cfg.RequestTimeout)
	}
	if text.SystemPromptTemplate != "" {
		if _, err := template.New("system").Option("missingkey=error").Parse(text.SystemPromptTemplate); err != nil {
			report("askai.system_prompt_template: %w", err)
		}
	}
	for key, value := range text.RequestMetadata {
		name := strings.ToLower(strings.TrimSpace(key))
		switch {
		case name == "" || strings.TrimSpace(value) == "":
			report("askai.request_metadata: empty key or value for %q", key)
		case isReserved(name):
			report("askai.request_metadata[%s]: reserved key", key)
		}
	}

	if image := cfg.GenImage; image.Enabled() {
		profile, ok := cfg.Providers[image.Provider]
		switch {
		case !ok:
			report("genimage.provider %q is not configured", image.Provider)
		case profile.Type != ProviderTypeOpenAI:
			report("genimage.provider %q is %s; only openai generates images", image.Provider, profile.Type)
		}
		if !imageSizePattern.MatchString(image.Size) {
			report("genimage.size %q must look like 1024x1024", image.Size)
		}
		if image.RequestTimeout <= 0 || image.RequestTimeout > cfg.RequestTimeout {
			report("genimage.request_timeout must be within (0, %s]", cfg.RequestTimeout)
		}
	}

	if err := errors.Join(problems...); err != nil {
		return fmt.Errorf("validate llm config: %w", err)
	}

	return nil
}

func (cfg Config) hasProvider(name string) bool {
	_, ok := cfg.Providers[name]
	return ok
}

func (p ProviderProfile) validate() error {
	if p.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if p.BaseURL != "" {
		parsed, err := url.Parse(p.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("base_url %q must be an absolute url", p.BaseURL)
		}
	}

	switch p.Type {
	case ProviderTypeOpenAI:
		if p.Gemini != nil {
			return fmt.Errorf("gemini options on an openai provider")
		}
		if p.OpenAI != nil && p.OpenAI.MaxRetries != nil && *p.OpenAI.MaxRetries < 0 {
			return fmt.Errorf("openai.max_retries must not be negative")
		}
	case ProviderTypeGemini:
		if p.OpenAI != nil {
			return fmt.Errorf("openai options on a gemini provider")
		}
		if options := p.Gemini; options != nil {
			if options.APIVersion != "" && !apiVersionPattern.MatchString(options.APIVersion) {
				return fmt.Errorf("gemini.api_version %q is malformed", options.APIVersion)
			}
			if options.ThinkingBudget != nil && *options.ThinkingBudget < 0 {
				return fmt.Errorf("gemini.thinking_budget must not be negative")
			}
		}
	default:
		return fmt.Errorf("unsupported type %q", p.Type)
	}

	return nil
}

func isReserved(key string) bool {
	for _, reserved := range reservedMetadataKeys {
		if key == reserved {
			return true
		}
	}

	return false
}

func orDefault(value *duration, fallback time.Duration) time.Duration {
	if value == nil {
		return fallback
	}

	return time.Duration(*value)
}

func orValue[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}

	return *value
}
