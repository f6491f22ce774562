package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"sandwich/pkg/sandwich"

	gotdtelegram "github.com/gotd/td/telegram"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runtimeConfig is the "config" object of a telegram driver entry.
type runtimeConfig struct {
	AppID       int    `json:"app_id"`
	AppHash     string `json:"app_hash"`
	BotToken    string `json:"bot_token"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	SessionFile string `json:"session_file"`
	UpdateQueue int    `json:"update_buffer"`
	// MTProtoLogLevel enables gotd's own zap logging ("debug", "info", ...).
	MTProtoLogLevel string `json:"mtproto_log_level"`

	PublishTimeout time.Duration `json:"-"`
	RequestTimeout time.Duration `json:"-"`
	AuthTimeout    time.Duration `json:"-"`
}

func parseRuntimeConfig(raw []byte) (runtimeConfig, error) {
	if len(raw) == 0 {
		return runtimeConfig{}, fmt.Errorf("missing config")
	}

	var doc struct {
		runtimeConfig
		PublishTimeout string `json:"publish_timeout"`
		RequestTimeout string `json:"request_timeout"`
		AuthTimeout    string `json:"auth_timeout"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return runtimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := doc.runtimeConfig
	for _, field := range []struct {
		name     string
		raw      string
		fallback time.Duration
		into     *time.Duration
	}{
		{"publish_timeout", doc.PublishTimeout, 2 * time.Second, &cfg.PublishTimeout},
		{"request_timeout", doc.RequestTimeout, 10 * time.Second, &cfg.RequestTimeout},
		{"auth_timeout", doc.AuthTimeout, 3 * time.Minute, &cfg.AuthTimeout},
	} {
		*field.into = field.fallback
		value := strings.TrimSpace(field.raw)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return runtimeConfig{}, fmt.Errorf("%s: want a positive duration, got %q", field.name, value)
		}
		*field.into = parsed
	}

	cfg.AppHash = strings.TrimSpace(cfg.AppHash)
	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	cfg.Phone = strings.TrimSpace(cfg.Phone)
	cfg.SessionFile = strings.TrimSpace(cfg.SessionFile)
	if cfg.SessionFile == "" {
		cfg.SessionFile = ".cache/telegram/session.json"
	}

	switch {
	case cfg.AppID <= 0:
		return runtimeConfig{}, fmt.Errorf("app_id must be > 0")
	case cfg.AppHash == "":
		return runtimeConfig{}, fmt.Errorf("app_hash is required")
	case cfg.BotToken == "" && cfg.Phone == "":
		return runtimeConfig{}, fmt.Errorf("bot_token or phone is required")
	}

	return cfg, nil
}

// mtprotoLogger builds the zap logger gotd writes its transport logs to.
// An empty level keeps gotd quiet.
func mtprotoLogger(level string, driverName string) (*zap.Logger, error) {
	if strings.TrimSpace(level) == "" {
		return zap.NewNop(), nil
	}
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("mtproto_log_level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build mtproto logger: %w", err)
	}

	return logger.Named("gotd").With(zap.String("driver", driverName)), nil
}

// BuildRuntimeFromConfig builds the driver and the dispatcher of one
// telegram entry. Both share a single MTProto client and peer cache.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (sandwich.EventSource, sandwich.Driver, sandwich.SinkDispatcher, error) {
	source := sandwich.EventSource{Platform: DriverPlatform, ID: name}
	fail := func(err error) (sandwich.EventSource, sandwich.Driver, sandwich.SinkDispatcher, error) {
		return sandwich.EventSource{}, nil, nil, fmt.Errorf("build telegram runtime %s: %w", name, err)
	}

	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return fail(err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", name)

	storage, err := fileSession(cfg.SessionFile)
	if err != nil {
		return fail(err)
	}
	mtproto, err := mtprotoLogger(cfg.MTProtoLogLevel, name)
	if err != nil {
		return fail(err)
	}

	queue := newUpdateQueue(cfg.UpdateQueue)
	client := gotdtelegram.NewClient(cfg.AppID, cfg.AppHash, gotdtelegram.Options{
		UpdateHandler:  queue,
		SessionStorage: storage,
		Logger:         mtproto,
	})
	peers := NewPeerCache()

	driver := newDriver(
		name,
		clientSession{
			client: client,
			login: login{
				botToken: cfg.BotToken,
				phone:    cfg.Phone,
				password: cfg.Password,
				code:     strings.TrimSpace(cfg.Code),
				timeout:  cfg.AuthTimeout,
				logger:   logger,
				prompt:   promptCode(os.Stdin, os.Stdout),
			},
		},
		queue.items,
		peers,
		WithPublishTimeout(cfg.PublishTimeout),
		WithErrorHandler(func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "telegram driver error", "error", err)
		}),
	)

	sink := newSinkDispatcher(
		newClientRPC(client),
		peers,
		WithOutboundTimeout(cfg.RequestTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(sandwich.SinkRef{Platform: DriverPlatform, ID: name}),
	)

	return source, driver, sink, nil
}
