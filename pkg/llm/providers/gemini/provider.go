// Package gemini answers text prompts with the Gemini GenerateContent API.
package gemini

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"sandwich/pkg/sandwich"
)

// Per-request overrides read from LLMGenerateRequest.Metadata.
const (
	MetadataGoogleSearch   = "gemini.google_search"
	MetadataThinkingBudget = "gemini.thinking_budget"
)

// ProviderConfig holds the client settings of one Gemini profile.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	// APIVersion defaults to v1beta.
	APIVersion string
	// GoogleSearch grounds answers with the Google Search tool.
	GoogleSearch bool
	// ThinkingBudget caps thinking tokens when set; zero disables thinking.
	ThinkingBudget *int
}

type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

type tuning struct {
	googleSearch   bool
	thinkingBudget *int32
}

// Provider is safe for concurrent use.
type Provider struct {
	models   contentGenerator
	defaults tuning
}

// New builds a provider from cfg.
func New(cfg ProviderConfig) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new gemini provider: missing api key")
	}
	defaults := tuning{googleSearch: cfg.GoogleSearch}
	if cfg.ThinkingBudget != nil {
		budget, err := toBudget(int64(*cfg.ThinkingBudget))
		if err != nil {
			return nil, fmt.Errorf("new gemini provider: thinking budget: %w", err)
		}
		defaults.thinkingBudget = &budget
	}

	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = "v1beta"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimSpace(cfg.BaseURL),
			APIVersion: version,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new gemini provider: %w", err)
	}

	return &Provider{models: client.Models, defaults: defaults}, nil
}

// Generate sends the conversation and joins the answer parts of the first
// candidate. System messages become the system instruction.
func (p *Provider) Generate(ctx context.Context, req sandwich.LLMGenerateRequest) (sandwich.LLMGenerateResult, error) {
	if err := req.Validate(); err != nil {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("gemini generate: %w", err)
	}
	settings, err := p.defaults.override(req.Metadata)
	if err != nil {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("gemini generate: %w", err)
	}

	var system []string
	var contents []*genai.Content
	for _, message := range req.Messages {
		switch message.Role {
		case sandwich.LLMMessageRoleSystem:
			system = append(system, message.Content)
		case sandwich.LLMMessageRoleAssistant:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("gemini generate: only system messages")
	}

	config := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(min(req.MaxOutputTokens, math.MaxInt32))
	}
	if settings.googleSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if settings.thinkingBudget != nil {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: settings.thinkingBudget}
	}

	response, err := p.models.GenerateContent(ctx, strings.TrimSpace(req.Model), contents, config)
	if err != nil {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("gemini generate: %w", err)
	}

	return answer(response)
}

// override applies the per-request metadata on top of the profile defaults.
func (t tuning) override(metadata map[string]string) (tuning, error) {
	if raw, ok := metadata[MetadataGoogleSearch]; ok {
		enabled, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return tuning{}, fmt.Errorf("%s: %w", MetadataGoogleSearch, err)
		}
		t.googleSearch = enabled
	}
	if raw, ok := metadata[MetadataThinkingBudget]; ok {
		value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return tuning{}, fmt.Errorf("%s: %w", MetadataThinkingBudget, err)
		}
		budget, err := toBudget(value)
		if err != nil {
			return tuning{}, fmt.Errorf("%s: %w", MetadataThinkingBudget, err)
		}
		t.thinkingBudget = &budget
	}

	return t, nil
}

func toBudget(value int64) (int32, error) {
	if value < 0 || value > math.MaxInt32 {
		return 0, fmt.Errorf("%d out of range", value)
	}

	return int32(value), nil
}

// answer joins the text parts of the first candidate, skipping thoughts.
func answer(response *genai.GenerateContentResponse) (sandwich.LLMGenerateResult, error) {
	if response == nil {
		return sandwich.LLMGenerateResult{}, fmt.Errorf("gemini generate: empty response")
	}

	var result sandwich.LLMGenerateResult
	if usage := response.UsageMetadata; usage != nil {
		result.Usage = sandwich.LLMUsage{
			InputTokens:  int64(usage.PromptTokenCount),
			OutputTokens: int64(usage.CandidatesTokenCount),
			TotalTokens:  int64(usage.TotalTokenCount),
		}
	}
	if len(response.Candidates) == 0 || response.Candidates[0] == nil {
		if feedback := response.PromptFeedback; feedback != nil && feedback.BlockReason != "" {
			return sandwich.LLMGenerateResult{}, fmt.Errorf("gemini generate: prompt blocked: %s", feedback.BlockReason)
		}
		return result, nil
	}

	var text strings.Builder
	if content := response.Candidates[0].Content; content != nil {
		for _, part := range content.Parts {
			if part != nil && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}
	result.Text = text.String()

	return result, nil
}

var _ sandwich.LLMProvider = (*Provider)(nil)
