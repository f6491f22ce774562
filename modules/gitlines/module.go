// Package gitlines answers !gitlines by downloading a GitHub repository
// snapshot and tallying code and comment lines per file extension.
package gitlines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"sandwich/pkg/sandwich"
)

const (
	commandName            = "gitlines"
	defaultBaseURL         = "https://github.com"
	defaultBranch          = "master"
	defaultMaxArchiveBytes = 2 * 1024 * 1024
	defaultHandlerTimeout  = time.Minute
)

// Option mutates gitlines module configuration.
type Option func(*Module)

// WithBaseURL overrides the GitHub origin archives are fetched from.
func WithBaseURL(baseURL string) Option {
	return func(module *Module) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			module.baseURL = baseURL
		}
	}
}

// WithDefaultBranch sets the branch used when a repo has none.
func WithDefaultBranch(branch string) Option {
	return func(module *Module) {
		if branch = strings.TrimSpace(branch); branch != "" {
			module.defaultBranch = branch
		}
	}
}

// WithMaxArchiveBytes bounds the accepted archive size.
func WithMaxArchiveBytes(limit int64) Option {
	return func(module *Module) {
		if limit > 0 {
			module.maxArchiveBytes = limit
		}
	}
}

// WithHTTPClient replaces the client used for archive downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(module *Module) {
		if client != nil {
			module.client = client
		}
	}
}

// Module counts repository lines on demand.
type Module struct {
	logger          *slog.Logger
	replies         sandwich.ReplyCache
	client          *http.Client
	baseURL         string
	defaultBranch   string
	maxArchiveBytes int64
}

// New creates a gitlines module.
func New(options ...Option) *Module {
	module := &Module{
		logger:          slog.Default(),
		client:          &http.Client{Timeout: 30 * time.Second},
		baseURL:         defaultBaseURL,
		defaultBranch:   defaultBranch,
		maxArchiveBytes: defaultMaxArchiveBytes,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "gitlines"
}

// Spec declares the gitlines command.
func (m *Module) Spec() sandwich.ModuleSpec {
	return sandwich.ModuleSpec{
		Handlers: []sandwich.ModuleHandler{
			{
				Capability: sandwich.Capability{
					Name:        "gitlines-command",
					Description: "counts code and comment lines of a GitHub repository",
					Interest: sandwich.InterestSet{
						Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
						Commands: []string{commandName},
					},
					RequiredServices: []string{sandwich.ServiceReplyCache},
				},
				Subscription: sandwich.SubscriptionSpec{
					Name:           "gitlines-command",
					Workers:        2,
					HandlerTimeout: defaultHandlerTimeout,
				},
				Handler: m.handleCommand,
			},
		},
		Commands: []sandwich.CommandSpec{
			{
				Name:        commandName,
				Usage:       "<owner/repo[/branch]> <ext...>",
				Description: "count lines of code in a GitHub repository",
				MinArgs:     2,
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime sandwich.ModuleRuntime) error {
	services := runtime.Services()

	logger, err := sandwich.ResolveAs[*slog.Logger](services, sandwich.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, sandwich.ErrServiceNotFound):
	default:
		return fmt.Errorf("gitlines resolve logger: %w", err)
	}

	if m.replies, err = sandwich.ResolveAs[sandwich.ReplyCache](services, sandwich.ServiceReplyCache); err != nil {
		return fmt.Errorf("gitlines resolve reply cache: %w", err)
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

func (m *Module) handleCommand(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}

	text, err := m.report(ctx, event.Command.Args)
	if err != nil {
		var userErr *fetchError
		if !errors.As(err, &userErr) {
			return fmt.Errorf("gitlines count: %w", err)
		}
		m.logger.DebugContext(ctx, "gitlines download rejected", "error", err)
		text = userErr.reply
	}

	request, err := sandwich.ReplyTo(event, text)
	if err != nil {
		return fmt.Errorf("gitlines derive reply: %w", err)
	}
	if _, err := sandwich.SendReply(ctx, m.replies, request); err != nil {
		return fmt.Errorf("gitlines reply: %w", err)
	}

	return nil
}

// report builds the reply text for `!gitlines <repo> <ext...>`.
func (m *Module) report(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return "Invalid syntax: !gitlines <repo> <file extensions ...>", nil
	}

	exts := make([]string, 0, len(args)-1)
	for _, raw := range args[1:] {
		ext := strings.ToLower(strings.TrimPrefix(raw, "."))
		if _, ok := supportedSyntax[ext]; !ok {
			return "supported exts: " + strings.Join(supportedExtensions(), ", ") + ".", nil
		}
		if !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}

	ref := parseRepoRef(args[0], m.defaultBranch)
	archive, err := downloadArchive(ctx, m.client, archiveURL(m.baseURL, ref), ref, m.maxArchiveBytes)
	if err != nil {
		return "", err
	}

	counts, err := countArchive(archive, exts)
	if err != nil {
		return "", &fetchError{reply: "Invalid archive.", cause: err}
	}
	m.logger.DebugContext(ctx, "gitlines counted repository", "repo", ref.String(), "exts", exts)

	var builder strings.Builder
	builder.WriteString("Total linecounts (inaccurate):")
	for _, ext := range exts {
		count := counts[ext]
		fmt.Fprintf(&builder, "\n%s | code=%d  comments=%d", ext, count.code, count.comments)
	}

	return builder.String(), nil
}

func supportedExtensions() []string {
	exts := make([]string, 0, len(supportedSyntax))
	for ext := range supportedSyntax {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	return exts
}

var (
	_ sandwich.Module          = (*Module)(nil)
	_ sandwich.ModuleRegistrar = (*Module)(nil)
)
