package llm

import (
	"context"
	"strings"
	"testing"

	"sandwich/pkg/llm/config"
	"sandwich/pkg/sandwich"
)

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	text := &providerStub{name: "text"}
	image := &imageProviderStub{}
	registry, err := NewRegistry(map[string]sandwich.LLMProvider{"text": text, " image ": image})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	tests := []struct {
		name      string
		key       string
		imageOnly bool
		want      any
		wantErr   string
	}{
		{name: "text provider", key: "text", want: text},
		{name: "padded key", key: "  text ", want: text},
		{name: "image provider", key: "image", imageOnly: true, want: image},
		{name: "image provider as text", key: "image", want: image},
		{name: "text provider as image", key: "text", imageOnly: true, wantErr: "does not generate images"},
		{name: "unknown", key: "missing", wantErr: "is not configured"},
		{name: "unknown image", key: "missing", imageOnly: true, wantErr: "is not configured"},
		{name: "blank", key: "  ", wantErr: "empty provider key"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var (
				got any
				err error
			)
			if testCase.imageOnly {
				got, err = registry.ResolveImage(testCase.key)
			} else {
				got, err = registry.Resolve(testCase.key)
			}
			if testCase.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
					t.Fatalf("error = %v, want %q", err, testCase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve error = %v", err)
			}
			if got != testCase.want {
				t.Fatalf("resolved %p, want %p", got, testCase.want)
			}
		})
	}
}

func TestNewRegistryRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers map[string]sandwich.LLMProvider
		wantErr   string
	}{
		{name: "nothing", wantErr: "empty providers"},
		{name: "blank key", providers: map[string]sandwich.LLMProvider{" ": &providerStub{}}, wantErr: "empty provider key"},
		{name: "nil provider", providers: map[string]sandwich.LLMProvider{"a": nil}, wantErr: "provider a is nil"},
		{
			name:      "keys collide once trimmed",
			providers: map[string]sandwich.LLMProvider{"a": &providerStub{}, "a ": &providerStub{}},
			wantErr:   "duplicate provider key a",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewRegistry(testCase.providers); err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("error = %v, want %q", err, testCase.wantErr)
			}
		})
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`{
		"providers": {
			"openai-main": {"type": "openai", "api_key": "sk-test", "openai": {"max_retries": 1}},
			"gemini-main": {"type": "gemini", "api_key": "gm-test", "gemini": {"google_search": true, "thinking_budget": 512}}
		},
		"askai": {"provider": "gemini-main", "model": "gemini-2.5-flash"},
		"genimage": {"provider": "openai-main"}
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	registry, err := NewRegistryFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewRegistryFromConfig() error = %v", err)
	}
	if _, err := registry.Resolve("gemini-main"); err != nil {
		t.Fatalf("Resolve(gemini-main) error = %v", err)
	}
	if _, err := registry.ResolveImage("openai-main"); err != nil {
		t.Fatalf("ResolveImage(openai-main) error = %v", err)
	}
	if _, err := registry.ResolveImage("gemini-main"); err == nil {
		t.Fatal("ResolveImage(gemini-main) succeeded, want error")
	}
}

func TestNewRegistryFromConfigUnsupportedType(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Providers: map[string]config.ProviderProfile{
		"odd": {Type: "anthropic", APIKey: "key"},
	}}
	if _, err := NewRegistryFromConfig(cfg); err == nil || !strings.Contains(err.Error(), `unsupported type "anthropic"`) {
		t.Fatalf("error = %v, want unsupported type", err)
	}
}

type providerStub struct {
	name string
}

func (*providerStub) Generate(context.Context, sandwich.LLMGenerateRequest) (sandwich.LLMGenerateResult, error) {
	return sandwich.LLMGenerateResult{}, nil
}

type imageProviderStub struct {
	providerStub
}

func (*imageProviderStub) GenerateImage(
	context.Context,
	sandwich.ImageGenerateRequest,
) (sandwich.ImageGenerateResult, error) {
	return sandwich.ImageGenerateResult{}, nil
}
