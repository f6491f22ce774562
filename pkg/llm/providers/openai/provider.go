// Package openai answers text prompts with the Chat Completions API and
// renders images with the Images API.
package openai

import (
	"context"
	"fmt"
	"slices"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"sandwich/pkg/sandwich"
)

// MetadataReasoningEffort selects the reasoning effort of reasoning models.
// Every other metadata entry is forwarded as request metadata.
const MetadataReasoningEffort = "openai.reasoning_effort"

var reasoningEfforts = []shared.ReasoningEffort{
	shared.ReasoningEffortMinimal,
	shared.ReasoningEffortLow,
	shared.ReasoningEffortMedium,
	shared.ReasoningEffortHigh,
}

// ProviderConfig holds the client settings of one OpenAI profile.
type ProviderConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
	Project      string
	// MaxRetries overrides the SDK retry count when set.
	MaxRetries *int
}

type chatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type imageClient interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// Provider is safe for concurrent use.
type Provider struct {
	chat   chatClient
	images imageClient
}

// New builds a provider from cfg.
func New(cfg ProviderConfig) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new openai provider: missing api key")
	}
	if cfg.MaxRetries != nil && *cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("new openai provider: negative max retries")
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	optional := []struct {
		value string
		apply func(string) option.RequestOption
	}{
		{value: cfg.BaseURL, apply: option.WithBaseURL},
		{value: cfg.Organization, apply: option.WithOrganization},
		{value: cfg.Project, apply: option.WithProject},
	}
	for _, setting := range optional {
		if value := strings.TrimSpace(setting.value); value != "" {
			options = append(options, setting.apply(value))
		}
	}
	if cfg.MaxRetries != nil {
		options = append(options, option.WithMaxRetries(*cfg.MaxRetries))
	}

	client := openai.NewClient(options...)

	return &Provider{chat: &client.Chat.Completions, images: &client.Images}, nil
}

// Generate sends the conversation as one chat completion and returns the
// first choice.
func (p *Provider) Generate(ctx context.Context, req sandwich.LLMGenerateRequest) (sandwich.LLMGenerateResult, error) {
	if err := req.Validate(); err != nil {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("openai generate: %w", err)
	}
	params, err := chatParams(req)
	if err != nil {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("openai generate: %w", err)
	}

	completion, err := p.chat.New(ctx, params)
	if err != nil {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("openai generate: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("openai generate: completion has no choices")
	}
	choice := completion.Choices[0]
	if choice.Message.Refusal != "" && choice.Message.Content == "" {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("openai generate: model refused: %s", choice.Message.Refusal)
	}

	return sandwich.LLMGenerateResult{
		Text: choice.Message.Content,
		Usage: sandwich.LLMUsage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
			TotalTokens:  completion.Usage.TotalTokens,
		},
	}, nil
}

// GenerateImage renders one image and returns its URL.
func (p *Provider) GenerateImage(ctx context.Context, req sandwich.ImageGenerateRequest) (sandwich.ImageGenerateResult, error) {
	if err := req.Validate(); err != nil {
		return sandwich.ImageGenerateResult{}, fmt.Errorf("openai generate image: %w", err)
	}

	params := openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModelDallE3,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	}
	if model := strings.TrimSpace(req.Model); model != "" {
		params.Model = openai.ImageModel(model)
	}
	if size := strings.TrimSpace(req.Size); size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}

	images, err := p.images.Generate(ctx, params)
	if err != nil {
		return sandwich.ImageGenerateResult{}, fmt.Errorf("openai generate image: %w", err)
	}
	if images == nil || len(images.Data) == 0 || images.Data[0].URL == "" {
		return sandwich.ImageGenerateResult{}, fmt.Errorf("openai generate image: no image url returned")
	}

	return sandwich.ImageGenerateResult{URL: images.Data[0].URL}, nil
}

func chatParams(req sandwich.LLMGenerateRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(strings.TrimSpace(req.Model)),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	for _, message := range req.Messages {
		switch message.Role {
		case sandwich.LLMMessageRoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(message.Content))
		case sandwich.LLMMessageRoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(message.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(message.Content))
		}
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	for key, value := range req.Metadata {
		if key != MetadataReasoningEffort {
			if params.Metadata == nil {
				params.Metadata = shared.Metadata{}
			}
			params.Metadata[key] = value
			continue
		}
		effort := shared.ReasoningEffort(strings.ToLower(strings.TrimSpace(value)))
		if !slices.Contains(reasoningEfforts, effort) {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("%s: unsupported value %q", MetadataReasoningEffort, value)
		}
		params.ReasoningEffort = effort
	}

	return params, nil
}

var (
	_ sandwich.LLMProvider    = (*Provider)(nil)
	_ sandwich.ImageGenerator = (*Provider)(nil)
)
