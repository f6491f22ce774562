// Package utility implements the bot's small everyday commands: search links,
// channel cleanup and the owner-only restart.
package utility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sandwich/pkg/sandwich"
)

const (
	googleCommandName         = "g"
	howCommandName            = "how"
	nukeSelfCommandName       = "ns"
	nukeReactionsCommandName  = "nr"
	restartCommandName        = "restart"
	confirmEmoji              = "✅"
	defaultNukeSelfScanLimit  = 1000
	defaultNukeReactionsLimit = 100
)

// Option mutates utility module configuration.
type Option func(*Module)

// WithNukeSelfScanLimit bounds how many recent messages !ns inspects.
func WithNukeSelfScanLimit(limit int) Option {
	return func(module *Module) {
		if limit > 0 {
			module.nukeSelfScanLimit = limit
		}
	}
}

// WithNukeReactionsLimit bounds how many recent messages !nr inspects.
func WithNukeReactionsLimit(limit int) Option {
	return func(module *Module) {
		if limit > 0 {
			module.nukeReactionsLimit = limit
		}
	}
}

// Module answers the utility commands.
type Module struct {
	logger             *slog.Logger
	replies            sandwich.ReplyCache
	dispatcher         sandwich.SinkDispatcher
	whitelist          sandwich.Whitelist
	restarter          sandwich.Restarter
	nukeSelfScanLimit  int
	nukeReactionsLimit int
}

// New creates a utility module.
func New(options ...Option) *Module {
	module := &Module{
		logger:             slog.Default(),
		nukeSelfScanLimit:  defaultNukeSelfScanLimit,
		nukeReactionsLimit: defaultNukeReactionsLimit,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "utility"
}

// Spec declares the utility commands.
func (m *Module) Spec() sandwich.ModuleSpec {
	return sandwich.ModuleSpec{
		Handlers: []sandwich.ModuleHandler{
			{
				Capability: sandwich.Capability{
					Name:        "utility-reply-commands",
					Description: "answers !g and !how with a text reply",
					Interest: sandwich.InterestSet{
						Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
						Commands: []string{googleCommandName, howCommandName},
					},
					RequiredServices: []string{sandwich.ServiceReplyCache},
				},
				Subscription: sandwich.SubscriptionSpec{Name: "utility-reply-commands"},
				Handler:      m.handleReplyCommand,
			},
			{
				Capability: sandwich.Capability{
					Name:        "utility-channel-commands",
					Description: "cleans up bot messages and reactions for !ns and !nr",
					Interest: sandwich.InterestSet{
						Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
						Commands: []string{nukeSelfCommandName, nukeReactionsCommandName},
					},
					RequiredServices: []string{sandwich.ServiceSinkDispatcher},
				},
				Subscription: sandwich.SubscriptionSpec{Name: "utility-channel-commands"},
				Handler:      m.handleChannelCommand,
			},
			{
				Capability: sandwich.Capability{
					Name:        "utility-restart-command",
					Description: "restarts the bot process for its owner",
					Interest: sandwich.InterestSet{
						Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
						Commands: []string{restartCommandName},
					},
					RequiredServices: []string{
						sandwich.ServiceSinkDispatcher,
						sandwich.ServiceWhitelist,
						sandwich.ServiceRestarter,
					},
				},
				Subscription: sandwich.SubscriptionSpec{Name: "utility-restart-command"},
				Handler:      m.handleRestart,
			},
		},
		Commands: []sandwich.CommandSpec{
			{Name: googleCommandName, Usage: "<query>", Description: "reply with a google search link"},
			{Name: howCommandName, Description: "explain how it works"},
			{Name: nukeSelfCommandName, Description: "delete the bot's recent messages in this channel"},
			{Name: nukeReactionsCommandName, Description: "clear reactions on recent messages in this channel"},
			{Name: restartCommandName, Description: "restart the bot (owner only)"},
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
		return fmt.Errorf("utility resolve logger: %w", err)
	}

	if m.replies, err = sandwich.ResolveAs[sandwich.ReplyCache](services, sandwich.ServiceReplyCache); err != nil {
		return fmt.Errorf("utility resolve reply cache: %w", err)
	}
	if m.dispatcher, err = sandwich.ResolveAs[sandwich.SinkDispatcher](
		services,
		sandwich.ServiceSinkDispatcher,
	); err != nil {
		return fmt.Errorf("utility resolve sink dispatcher: %w", err)
	}
	if m.whitelist, err = sandwich.ResolveAs[sandwich.Whitelist](services, sandwich.ServiceWhitelist); err != nil {
		return fmt.Errorf("utility resolve whitelist: %w", err)
	}
	if m.restarter, err = sandwich.ResolveAs[sandwich.Restarter](services, sandwich.ServiceRestarter); err != nil {
		return fmt.Errorf("utility resolve restarter: %w", err)
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

var (
	_ sandwich.Module          = (*Module)(nil)
	_ sandwich.ModuleRegistrar = (*Module)(nil)
)
