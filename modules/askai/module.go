// Package askai answers !askai with a language model completion and
// !genimage with a generated image link, both gated on the AI whitelist.
package askai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"sandwich/pkg/llm/config"
	"sandwich/pkg/sandwich"
)

const (
	askCommand   = "askai"
	imageCommand = "genimage"

	// handlerGrace covers attachment downloads and reply delivery on top of
	// the provider request timeout.
	handlerGrace = 30 * time.Second

	responseFileName = "response.txt"
	failureText      = "AI request failed."
)

// Option mutates askai module configuration.
type Option func(*Module)

// WithHTTPClient replaces the client used to download text attachments.
func WithHTTPClient(client *http.Client) Option {
	return func(module *Module) {
		if client != nil {
			module.client = client
		}
	}
}

// WithRandom replaces the index source used to pick refusals.
func WithRandom(intN func(n int) int) Option {
	return func(module *Module) {
		if intN != nil {
			module.intN = intN
		}
	}
}

// WithClock replaces the clock used when rendering system prompts.
func WithClock(now func() time.Time) Option {
	return func(module *Module) {
		if now != nil {
			module.now = now
		}
	}
}

// Module serves the paid AI commands.
type Module struct {
	cfg config.Config

	logger    *slog.Logger
	replies   sandwich.ReplyCache
	whitelist sandwich.Whitelist
	text      sandwich.LLMProvider
	images    sandwich.ImageGenerator

	client *http.Client
	intN   func(n int) int
	now    func() time.Time
}

// New creates an askai module from validated LLM configuration.
func New(cfg config.Config, options ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new askai module: %w", err)
	}

	module := &Module{
		cfg:    cfg,
		logger: slog.Default(),
		client: &http.Client{Timeout: 30 * time.Second},
		intN:   rand.IntN,
		now:    time.Now,
	}
	for _, option := range options {
		option(module)
	}

	return module, nil
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "askai"
}

// Spec declares !askai and, when an image profile is configured, !genimage.
func (m *Module) Spec() sandwich.ModuleSpec {
	required := []string{
		sandwich.ServiceReplyCache,
		sandwich.ServiceWhitelist,
		sandwich.ServiceLLMProviderRegistry,
	}

	spec := sandwich.ModuleSpec{
		Handlers: []sandwich.ModuleHandler{
			{
				Capability: sandwich.Capability{
					Name:        "askai-command",
					Description: "answers prompts with a language model",
					Interest: sandwich.InterestSet{
						Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
						Commands: []string{askCommand},
					},
					RequiredServices: required,
				},
				Subscription: sandwich.SubscriptionSpec{
					Name:           "askai-command",
					Workers:        2,
					HandlerTimeout: m.cfg.AskAI.RequestTimeout + handlerGrace,
				},
				Handler: m.handleAsk,
			},
		},
		Commands: []sandwich.CommandSpec{
			{
				Name:        askCommand,
				Usage:       "<prompt>",
				Description: "ask a language model; text attachments are appended to the prompt",
			},
		},
	}
	if !m.cfg.GenImage.Enabled() {
		return spec
	}

	spec.Handlers = append(spec.Handlers, sandwich.ModuleHandler{
		Capability: sandwich.Capability{
			Name:        "genimage-command",
			Description: "generates images from prompts",
			Interest: sandwich.InterestSet{
				Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
				Commands: []string{imageCommand},
			},
			RequiredServices: required,
		},
		Subscription: sandwich.SubscriptionSpec{
			Name:           "genimage-command",
			Workers:        1,
			HandlerTimeout: m.cfg.GenImage.RequestTimeout + handlerGrace,
		},
		Handler: m.handleImage,
	})
	spec.Commands = append(spec.Commands, sandwich.CommandSpec{
		Name:        imageCommand,
		Usage:       "<prompt>",
		Description: "generate an image",
		MinArgs:     1,
	})

	return spec
}

// OnRegister resolves dependencies and the configured providers.
func (m *Module) OnRegister(_ context.Context, runtime sandwich.ModuleRuntime) error {
	services := runtime.Services()

	logger, err := sandwich.ResolveAs[*slog.Logger](services, sandwich.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, sandwich.ErrServiceNotFound):
	default:
		return fmt.Errorf("askai resolve logger: %w", err)
	}

	if m.replies, err = sandwich.ResolveAs[sandwich.ReplyCache](services, sandwich.ServiceReplyCache); err != nil {
		return fmt.Errorf("askai resolve reply cache: %w", err)
	}
	if m.whitelist, err = sandwich.ResolveAs[sandwich.Whitelist](services, sandwich.ServiceWhitelist); err != nil {
		return fmt.Errorf("askai resolve whitelist: %w", err)
	}
	registry, err := sandwich.ResolveAs[sandwich.LLMProviderRegistry](services, sandwich.ServiceLLMProviderRegistry)
	if err != nil {
		return fmt.Errorf("askai resolve provider registry: %w", err)
	}

	if m.text, err = registry.Resolve(m.cfg.AskAI.Provider); err != nil {
		return fmt.Errorf("askai resolve provider %s: %w", m.cfg.AskAI.Provider, err)
	}
	if m.cfg.GenImage.Enabled() {
		if m.images, err = registry.ResolveImage(m.cfg.GenImage.Provider); err != nil {
			return fmt.Errorf("askai resolve image provider %s: %w", m.cfg.GenImage.Provider, err)
		}
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleAsk(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}

	allowed, err := m.gate(ctx, event)
	if err != nil || !allowed {
		return err
	}

	prompt, err := m.buildPrompt(ctx, event)
	if err != nil {
		var userErr *promptError
		if !errors.As(err, &userErr) {
			return fmt.Errorf("askai build prompt: %w", err)
		}
		m.logger.DebugContext(ctx, "askai prompt rejected", "error", err)

		return m.reply(ctx, event, userErr.reply, nil)
	}

	req, err := m.generateRequest(event, prompt)
	if err != nil {
		return fmt.Errorf("askai build request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.AskAI.RequestTimeout)
	defer cancel()

	result, err := m.text.Generate(reqCtx, req)
	if err != nil {
		replyErr := m.reply(ctx, event, failureText, nil)
		return errors.Join(fmt.Errorf("askai generate: %w", err), replyErr)
	}
	m.logger.InfoContext(ctx, "askai answered",
		"actor_id", event.Actor.ID,
		"provider", m.cfg.AskAI.Provider,
		"model", m.cfg.AskAI.Model,
		"total_tokens", result.Usage.TotalTokens,
	)

	text, attachment := formatAnswer(result, m.cfg.AskAI.CostPer1KTokens)

	return m.reply(ctx, event, text, attachment)
}

func (m *Module) handleImage(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}

	allowed, err := m.gate(ctx, event)
	if err != nil || !allowed {
		return err
	}

	prompt := strings.TrimSpace(event.Command.Value)
	if prompt == "" {
		return m.reply(ctx, event, "Usage: !genimage <prompt>", nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.GenImage.RequestTimeout)
	defer cancel()

	result, err := m.images.GenerateImage(reqCtx, sandwich.ImageGenerateRequest{
		Model:  m.cfg.GenImage.Model,
		Prompt: prompt,
		Size:   m.cfg.GenImage.Size,
	})
	if err != nil {
		replyErr := m.reply(ctx, event, failureText, nil)
		return errors.Join(fmt.Errorf("genimage generate: %w", err), replyErr)
	}
	m.logger.InfoContext(ctx, "genimage answered", "actor_id", event.Actor.ID, "provider", m.cfg.GenImage.Provider)

	return m.reply(ctx, event, result.URL, nil)
}

// gate reports whether event's actor may use paid commands and answers
// everyone else with a refusal.
func (m *Module) gate(ctx context.Context, event *sandwich.Event) (bool, error) {
	allowed, err := m.whitelist.Allowed(ctx, event.Actor, sandwich.WhitelistScopeGeneral, sandwich.WhitelistScopeAI)
	if err != nil {
		return false, fmt.Errorf("askai check whitelist: %w", err)
	}
	if allowed {
		return true, nil
	}
	m.logger.DebugContext(ctx, "askai refused actor", "actor_id", event.Actor.ID, "command", event.Command.Name)

	return false, m.reply(ctx, event, refusal(m.intN), nil)
}

func (m *Module) generateRequest(event *sandwich.Event, prompt string) (sandwich.LLMGenerateRequest, error) {
	profile := m.cfg.AskAI

	messages := make([]sandwich.LLMMessage, 0, 2)
	if strings.TrimSpace(profile.SystemPromptTemplate) != "" {
		system, err := renderSystemPrompt(profile, event, m.now())
		if err != nil {
			return sandwich.LLMGenerateRequest{}, err
		}
		messages = append(messages, sandwich.LLMMessage{Role: sandwich.LLMMessageRoleSystem, Content: system})
	}
	messages = append(messages, sandwich.LLMMessage{Role: sandwich.LLMMessageRoleUser, Content: prompt})

	metadata := make(map[string]string, len(profile.RequestMetadata)+3)
	for key, value := range profile.RequestMetadata {
		metadata[key] = value
	}
	metadata["command"] = event.Command.Name
	metadata["provider"] = profile.Provider
	metadata["conversation_id"] = event.Conversation.ID

	req := sandwich.LLMGenerateRequest{
		Model:           profile.Model,
		Messages:        messages,
		MaxOutputTokens: profile.MaxOutputTokens,
		Temperature:     profile.Temperature,
		Metadata:        metadata,
	}
	if err := req.Validate(); err != nil {
		return sandwich.LLMGenerateRequest{}, err
	}

	return req, nil
}

// formatAnswer renders the cost line and the answer; answers too long for
// one message travel as a text file instead.
func formatAnswer(result sandwich.LLMGenerateResult, costPer1K float64) (string, *sandwich.Attachment) {
	answer := strings.TrimLeft(result.Text, "\n")
	cents := float64(result.Usage.TotalTokens) * (costPer1K / 1000) * 100
	header := fmt.Sprintf("Spent %.5f¢ (%d tokens) to produce result:", cents, result.Usage.TotalTokens)

	if len([]rune(answer)) > sandwich.MaxReplyTextLength {
		return header, &sandwich.Attachment{
			FileName:    responseFileName,
			ContentType: "text/plain",
			Data:        []byte(answer),
		}
	}

	return header + "\n\n" + answer, nil
}

func (m *Module) reply(ctx context.Context, event *sandwich.Event, text string, attachment *sandwich.Attachment) error {
	request, err := sandwich.ReplyTo(event, text)
	if err != nil {
		return fmt.Errorf("askai derive reply: %w", err)
	}
	if attachment != nil {
		request.Attachments = []sandwich.Attachment{*attachment}
	}
	if _, err := sandwich.SendReply(ctx, m.replies, request); err != nil {
		return fmt.Errorf("askai reply: %w", err)
	}

	return nil
}

var (
	_ sandwich.Module          = (*Module)(nil)
	_ sandwich.ModuleRegistrar = (*Module)(nil)
)
