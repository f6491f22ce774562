package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sandwich/internal/driver"
	llmconfig "sandwich/pkg/llm/config"
)

const (
	envConfigFile      = "SANDWICH_CONFIG_FILE"
	defaultEnvFilePath = ".env"
)

// configSearchPath is tried in order when neither --config nor
// $SANDWICH_CONFIG_FILE names a file.
var configSearchPath = []string{"config/bot.json", "bin/config/bot.json"}

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int
	handlerTimeout      time.Duration

	ownerIDs    []string
	whitelist   []string
	aiWhitelist []string

	drivers []driver.Definition

	// llm is nil without an llm section, and the AI commands stay off.
	llm *llmconfig.Config

	gitlinesMaxArchiveBytes int64
	gitlinesDefaultBranch   string
}

// document mirrors the config file. Absent keys keep their defaults.
type document struct {
	LogLevel            string    `json:"log_level"`
	ModuleHookTimeout   *duration `json:"module_hook_timeout"`
	ShutdownTimeout     *duration `json:"shutdown_timeout"`
	HandlerTimeout      *duration `json:"default_handler_timeout"`
	SubscriptionBuffer  *int      `json:"default_subscription_buffer"`
	SubscriptionWorkers *int      `json:"default_subscription_workers"`

	OwnerIDs    []string `json:"owner_ids"`
	Whitelist   []string `json:"whitelist"`
	AIWhitelist []string `json:"ai_whitelist"`

	Drivers []struct {
		Name    string          `json:"name"`
		Type    string          `json:"type"`
		Enabled *bool           `json:"enabled"`
		Config  json.RawMessage `json:"config"`
	} `json:"drivers"`

	LLM json.RawMessage `json:"llm"`

	Gitlines struct {
		MaxArchiveBytes *int64 `json:"max_archive_bytes"`
		DefaultBranch   string `json:"default_branch"`
	} `json:"gitlines"`
}

// duration is a positive time.Duration written as "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if parsed <= 0 {
		return fmt.Errorf("duration %q must be positive", text)
	}
	*d = duration(parsed)

	return nil
}

// loadEnvFile exports a dotenv file without overriding variables that are
// already set. A missing file is fine.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	return nil
}

func loadConfig(explicit string, registry *driver.Registry) (appConfig, error) {
	path, err := locateConfig(explicit)
	if err != nil {
		return appConfig{}, err
	}
	raw, err := readConfigDocument(path)
	if err != nil {
		return appConfig{}, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return appConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg, err := doc.resolve(registry)
	if err != nil {
		return appConfig{}, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func locateConfig(explicit string) (string, error) {
	for _, named := range []string{explicit, os.Getenv(envConfigFile)} {
		if named = strings.TrimSpace(named); named != "" {
			return named, nil
		}
	}

	for _, candidate := range configSearchPath {
		info, err := os.Stat(candidate)
		switch {
		case err == nil && info.IsDir():
			return "", fmt.Errorf("config file %s is a directory", candidate)
		case err == nil:
			return candidate, nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("locate config: %w", err)
		}
	}

	return "", fmt.Errorf("no config file: pass --config, set %s, or create %s",
		envConfigFile, strings.Join(configSearchPath, " or "))
}

// readConfigDocument returns the file as JSON with ${VAR} references
// expanded. YAML is converted so one set of struct tags serves both.
func readConfigDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	converted, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("convert %s to json: %w", path, err)
	}

	return converted, nil
}

// resolve applies defaults and reports every invalid setting at once.
func (doc document) resolve(registry *driver.Registry) (appConfig, error) {
	cfg := appConfig{
		logLevel:              slog.LevelInfo,
		moduleHookTimeout:     doc.ModuleHookTimeout.or(3 * time.Second),
		shutdownTimeout:       doc.ShutdownTimeout.or(10 * time.Second),
		handlerTimeout:        doc.HandlerTimeout.or(30 * time.Second),
		subscriptionBuffer:    256,
		subscriptionWorkers:   2,
		ownerIDs:              compactIDs(doc.OwnerIDs),
		whitelist:             compactIDs(doc.Whitelist),
		aiWhitelist:           compactIDs(doc.AIWhitelist),
		gitlinesDefaultBranch: strings.TrimSpace(doc.Gitlines.DefaultBranch),
	}

	var problems []error
	if doc.LogLevel != "" {
		level, err := parseLogLevel(doc.LogLevel)
		if err != nil {
			problems = append(problems, fmt.Errorf("log_level: %w", err))
		}
		cfg.logLevel = level
	}
	for _, count := range []struct {
		key   string
		value *int
		into  *int
	}{
		{"default_subscription_buffer", doc.SubscriptionBuffer, &cfg.subscriptionBuffer},
		{"default_subscription_workers", doc.SubscriptionWorkers, &cfg.subscriptionWorkers},
	} {
		switch {
		case count.value == nil:
		case *count.value <= 0:
			problems = append(problems, fmt.Errorf("%s must be positive", count.key))
		default:
			*count.into = *count.value
		}
	}
	if limit := doc.Gitlines.MaxArchiveBytes; limit != nil {
		if *limit <= 0 {
			problems = append(problems, fmt.Errorf("gitlines.max_archive_bytes must be positive"))
		}
		cfg.gitlinesMaxArchiveBytes = *limit
	}

	drivers, err := doc.driverDefinitions(registry)
	if err != nil {
		problems = append(problems, err)
	}
	cfg.drivers = drivers

	if len(doc.LLM) > 0 && !bytes.Equal(doc.LLM, []byte("null")) {
		parsed, err := llmconfig.Parse(doc.LLM)
		if err != nil {
			problems = append(problems, fmt.Errorf("llm: %w", err))
		}
		cfg.llm = &parsed
	}

	if err := errors.Join(problems...); err != nil {
		return appConfig{}, err
	}

	return cfg, nil
}

// driverDefinitions checks the drivers list. Entries are enabled unless
// they say otherwise, and at least one must be.
func (doc document) driverDefinitions(registry *driver.Registry) ([]driver.Definition, error) {
	var (
		definitions []driver.Definition
		problems    []error
		enabled     int
	)
	names := make(map[string]bool, len(doc.Drivers))
	for i, entry := range doc.Drivers {
		definition := driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: entry.Enabled == nil || *entry.Enabled,
			Config:  bytes.Clone(entry.Config),
		}
		label := fmt.Sprintf("drivers[%d]", i)
		if definition.Name != "" {
			label = fmt.Sprintf("drivers[%s]", definition.Name)
		}

		switch {
		case definition.Name == "":
			problems = append(problems, fmt.Errorf("%s: name is required", label))
		case names[definition.Name]:
			problems = append(problems, fmt.Errorf("%s: duplicate name", label))
		}
		names[definition.Name] = true
		if len(definition.Config) == 0 {
			problems = append(problems, fmt.Errorf("%s: config is required", label))
		}
		if definition.Enabled {
			if _, err := registry.PlatformForType(definition.Type); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", label, err))
			}
			enabled++
		}
		definitions = append(definitions, definition)
	}
	if enabled == 0 {
		problems = append(problems, fmt.Errorf("drivers: at least one enabled driver is required"))
	}

	return definitions, errors.Join(problems...)
}

func (d *duration) or(fallback time.Duration) time.Duration {
	if d == nil {
		return fallback
	}

	return time.Duration(*d)
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("unsupported level %q", raw)
}

func compactIDs(raw []string) []string {
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}
