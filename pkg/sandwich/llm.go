package sandwich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ServiceLLMProviderRegistry is the service name of the LLMProviderRegistry.
// It is only registered when an llm section is configured.
const ServiceLLMProviderRegistry = "sandwich.llm_provider_registry"

// LLMProviderRegistry looks up configured providers by their config key.
// It is shared by all module workers.
type LLMProviderRegistry interface {
	Resolve(provider string) (LLMProvider, error)
	// ResolveImage fails for providers that cannot generate images.
	ResolveImage(provider string) (ImageGenerator, error)
}

// LLMProvider answers one prompt at a time.
type LLMProvider interface {
	Generate(ctx context.Context, req LLMGenerateRequest) (LLMGenerateResult, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageGenerateRequest) (ImageGenerateResult, error)
}

type LLMMessageRole string

const (
	LLMMessageRoleSystem    LLMMessageRole = "system"
	LLMMessageRoleUser      LLMMessageRole = "user"
	LLMMessageRoleAssistant LLMMessageRole = "assistant"
)

func (r LLMMessageRole) Validate() error {
	if r != LLMMessageRoleSystem && r != LLMMessageRoleUser && r != LLMMessageRoleAssistant {
		return fmt.Errorf("unsupported role %q", r)
	}

	return nil
}

type LLMMessage struct {
	Role    LLMMessageRole
	Content string
}

func (m LLMMessage) Validate() error {
	if err := m.Role.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%s message is empty", m.Role)
	}

	return nil
}

// LLMGenerateRequest is one completion call. Zero MaxOutputTokens and
// Temperature leave the provider's defaults in place.
type LLMGenerateRequest struct {
	Model           string
	Messages        []LLMMessage
	MaxOutputTokens int
	Temperature     float64
	// Metadata is passed to providers that accept request metadata.
	Metadata map[string]string
}

func (r LLMGenerateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Model) == "":
		return fmt.Errorf("llm request: %w: missing model", ErrInvalidLLMRequest)
	case len(r.Messages) == 0:
		return fmt.Errorf("llm request: %w: no messages", ErrInvalidLLMRequest)
	case r.MaxOutputTokens < 0:
		return fmt.Errorf("llm request: %w: negative max output tokens", ErrInvalidLLMRequest)
	case r.Temperature < 0:
		return fmt.Errorf("llm request: %w: negative temperature", ErrInvalidLLMRequest)
	}
	for i, message := range r.Messages {
		if err := message.Validate(); err != nil {
			return fmt.Errorf("llm request: %w: message %d: %w", ErrInvalidLLMRequest, i, err)
		}
	}

	return nil
}

// LLMUsage is the token count a provider reported. Providers that report
// nothing leave it zero.
type LLMUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

type LLMGenerateResult struct {
	Text  string
	Usage LLMUsage
}

var imageSize = regexp.MustCompile(`^[1-9][0-9]*x[1-9][0-9]*$`)

// ImageGenerateRequest asks for one image. An empty Size uses the
// provider default; otherwise it reads "<width>x<height>".
type ImageGenerateRequest struct {
	Model  string
	Prompt string
	Size   string
}

func (r ImageGenerateRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("image request: %w: missing prompt", ErrInvalidLLMRequest)
	}
	if r.Size != "" && !imageSize.MatchString(r.Size) {
		return fmt.Errorf("image request: %w: malformed size %q", ErrInvalidLLMRequest, r.Size)
	}

	return nil
}

// ImageGenerateResult links to the generated image.
type ImageGenerateResult struct {
	URL string
}
