package whitelist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sandwich/pkg/sandwich"
)

const (
	addCommandName    = "addwl"
	removeCommandName = "rmwl"
	// confirmEmoji acknowledges a completed owner command.
	confirmEmoji = "✅"
)

// Module handles the owner-only !addwl and !rmwl commands.
type Module struct {
	logger     *slog.Logger
	whitelist  sandwich.Whitelist
	dispatcher sandwich.SinkDispatcher
}

// New creates a whitelist command module.
func New() *Module {
	return &Module{logger: slog.Default()}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "whitelist"
}

// Spec declares the whitelist editing commands.
func (m *Module) Spec() sandwich.ModuleSpec {
	return sandwich.ModuleSpec{
		Handlers: []sandwich.ModuleHandler{
			{
				Capability: sandwich.Capability{
					Name:        "whitelist-command-handler",
					Description: "adds or removes mentioned users from the whitelist",
					Interest: sandwich.InterestSet{
						Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
						Commands: []string{addCommandName, removeCommandName},
					},
					RequiredServices: []string{
						sandwich.ServiceWhitelist,
						sandwich.ServiceSinkDispatcher,
					},
				},
				Subscription: sandwich.SubscriptionSpec{Name: "whitelist-commands"},
				Handler:      m.handleCommand,
			},
		},
		Commands: []sandwich.CommandSpec{
			{
				Name:        addCommandName,
				Usage:       "<@user...>",
				Description: "whitelist the mentioned users (owner only)",
				MinArgs:     1,
			},
			{
				Name:        removeCommandName,
				Usage:       "<@user...>",
				Description: "remove the mentioned users from the whitelist (owner only)",
				MinArgs:     1,
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime sandwich.ModuleRuntime) error {
	logger, err := sandwich.ResolveAs[*slog.Logger](runtime.Services(), sandwich.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, sandwich.ErrServiceNotFound):
	default:
		return fmt.Errorf("whitelist resolve logger: %w", err)
	}

	whitelist, err := sandwich.ResolveAs[sandwich.Whitelist](runtime.Services(), sandwich.ServiceWhitelist)
	if err != nil {
		return fmt.Errorf("whitelist resolve whitelist: %w", err)
	}
	dispatcher, err := sandwich.ResolveAs[sandwich.SinkDispatcher](
		runtime.Services(),
		sandwich.ServiceSinkDispatcher,
	)
	if err != nil {
		return fmt.Errorf("whitelist resolve sink dispatcher: %w", err)
	}

	m.whitelist = whitelist
	m.dispatcher = dispatcher

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
	if !m.whitelist.IsOwner(event.Actor) {
		m.logger.DebugContext(ctx, "whitelist command rejected for non-owner",
			"command", event.Command.Name,
			"actor_id", event.Actor.ID,
		)
		return nil
	}

	var (
		changed int
		err     error
	)
	switch event.Command.Name {
	case addCommandName:
		changed, err = m.whitelist.Add(ctx, sandwich.WhitelistScopeGeneral, event.Message.Mentions...)
	case removeCommandName:
		changed, err = m.whitelist.Remove(ctx, sandwich.WhitelistScopeGeneral, event.Message.Mentions...)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("whitelist %s: %w", event.Command.Name, err)
	}

	m.logger.InfoContext(ctx, "whitelist updated",
		"command", event.Command.Name,
		"mentions", len(event.Message.Mentions),
		"changed", changed,
	)

	target, err := sandwich.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("whitelist derive outbound target: %w", err)
	}
	if err := m.dispatcher.SetReaction(ctx, sandwich.SetReactionRequest{
		Target:    target,
		MessageID: event.Message.ID,
		Emoji:     confirmEmoji,
		Action:    sandwich.ReactionActionAdd,
	}); err != nil {
		return fmt.Errorf("whitelist confirm %s: %w", event.Command.Name, err)
	}

	return nil
}

var (
	_ sandwich.Module          = (*Module)(nil)
	_ sandwich.ModuleRegistrar = (*Module)(nil)
)
