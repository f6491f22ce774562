package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sandwich/pkg/sandwich"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultRuntimePublishDelay = 2 * time.Second
	defaultRuntimeRequestDelay = 10 * time.Second
	defaultStateMaxMessages    = 1000
)

// runtimeIntents subscribes to guild and DM messages, their content and
// reactions.
const runtimeIntents = discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMessageReactions

// runtimeConfig is the "config" object of a discord driver entry.
type runtimeConfig struct {
	token            string
	publishTimeout   time.Duration
	requestTimeout   time.Duration
	stateMaxMessages int
}

// positiveDuration decodes a Go duration string and rejects values <= 0.
type positiveDuration time.Duration

func (p *positiveDuration) UnmarshalText(text []byte) error {
	value, err := time.ParseDuration(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	if value <= 0 {
		return fmt.Errorf("duration %s must be positive", value)
	}
	*p = positiveDuration(value)

	return nil
}

func parseRuntimeConfig(raw []byte) (runtimeConfig, error) {
	if len(raw) == 0 {
		return runtimeConfig{}, fmt.Errorf("missing config")
	}

	doc := struct {
		Token            string           `json:"token"`
		PublishTimeout   positiveDuration `json:"publish_timeout"`
		RequestTimeout   positiveDuration `json:"request_timeout"`
		StateMaxMessages int              `json:"state_max_messages"`
	}{
		PublishTimeout:   positiveDuration(defaultRuntimePublishDelay),
		RequestTimeout:   positiveDuration(defaultRuntimeRequestDelay),
		StateMaxMessages: defaultStateMaxMessages,
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return runtimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	token := strings.TrimPrefix(strings.TrimSpace(doc.Token), "Bot ")
	if token == "" {
		return runtimeConfig{}, fmt.Errorf("token is required")
	}
	if doc.StateMaxMessages <= 0 {
		doc.StateMaxMessages = defaultStateMaxMessages
	}

	return runtimeConfig{
		token:            token,
		publishTimeout:   time.Duration(doc.PublishTimeout),
		requestTimeout:   time.Duration(doc.RequestTimeout),
		stateMaxMessages: doc.StateMaxMessages,
	}, nil
}

// BuildRuntimeFromConfig builds the driver and the dispatcher of one
// discord entry on a shared session.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (sandwich.EventSource, sandwich.Driver, sandwich.SinkDispatcher, error) {
	source := sandwich.EventSource{Platform: DriverPlatform, ID: name}

	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return source, nil, nil, fmt.Errorf("parse discord runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + cfg.token)
	if err != nil {
		return source, nil, nil, fmt.Errorf("new discord session: %w", err)
	}
	session.Identify.Intents = runtimeIntents
	// BeforeUpdate and BeforeDelete are only filled from the state cache.
	session.State.MaxMessageCount = cfg.stateMaxMessages

	driver, err := NewDriver(
		session,
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "discord publish failed", "driver", name, "error", err)
		}),
	)
	if err != nil {
		return source, nil, nil, err
	}

	sink, err := NewOutboundDispatcher(
		session,
		WithOutboundTimeout(cfg.requestTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(sandwich.SinkRef{Platform: DriverPlatform, ID: name}),
		WithSelfID(func() string {
			if session.State == nil || session.State.User == nil {
				return ""
			}

			return session.State.User.ID
		}),
	)
	if err != nil {
		return source, nil, nil, err
	}

	return source, driver, sink, nil
}
