// Package help answers !help with the commands every registered module
// declared in its spec.
package help

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"sandwich/pkg/sandwich"
)

const commandName = "help"

// Module renders the command catalog.
type Module struct {
	replies        sandwich.ReplyCache
	commandCatalog sandwich.CommandCatalog
}

// New creates a help module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec subscribes to the help command.
func (m *Module) Spec() sandwich.ModuleSpec {
	interest := sandwich.InterestSet{
		Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
		Commands: []string{commandName},
	}

	return sandwich.ModuleSpec{
		Handlers: []sandwich.ModuleHandler{{
			Capability: sandwich.Capability{
				Name:             "help-command-handler",
				Description:      "lists registered commands",
				Interest:         interest,
				RequiredServices: []string{sandwich.ServiceReplyCache, sandwich.ServiceCommandCatalog},
			},
			Subscription: sandwich.SubscriptionSpec{Name: "help-commands"},
			Handler:      m.handleCommand,
		}},
		Commands: []sandwich.CommandSpec{{
			Name:        commandName,
			Description: "show all available commands",
		}},
	}
}

// OnRegister resolves the reply cache and the command catalog.
func (m *Module) OnRegister(_ context.Context, runtime sandwich.ModuleRuntime) error {
	services := runtime.Services()

	var err error
	if m.replies, err = sandwich.ResolveAs[sandwich.ReplyCache](services, sandwich.ServiceReplyCache); err != nil {
		return fmt.Errorf("help resolve reply cache: %w", err)
	}
	if m.commandCatalog, err = sandwich.ResolveAs[sandwich.CommandCatalog](
		services,
		sandwich.ServiceCommandCatalog,
	); err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}

	return nil
}

// OnStart is a no-op.
func (m *Module) OnStart(context.Context) error { return nil }

// OnShutdown is a no-op.
func (m *Module) OnShutdown(context.Context) error { return nil }

func (m *Module) handleCommand(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Message == nil || event.Command == nil || event.Command.Name != commandName {
		return nil
	}
	if m.replies == nil || m.commandCatalog == nil {
		return fmt.Errorf("help handle command: module not registered")
	}

	commands, err := m.commandCatalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}
	request, err := sandwich.ReplyTo(event, renderHelp(commands))
	if err != nil {
		return fmt.Errorf("help derive reply: %w", err)
	}
	if _, err := sandwich.SendReply(ctx, m.replies, request); err != nil {
		return fmt.Errorf("help send reply: %w", err)
	}

	return nil
}

// renderHelp groups commands under their module, both in name order.
func renderHelp(commands []sandwich.RegisteredCommand) string {
	var out strings.Builder
	out.WriteString("Available commands:")
	if len(commands) == 0 {
		out.WriteString("\n(none)")
		return out.String()
	}

	sorted := slices.Clone(commands)
	slices.SortStableFunc(sorted, func(a, b sandwich.RegisteredCommand) int {
		return cmp.Or(
			cmp.Compare(moduleLabel(a), moduleLabel(b)),
			cmp.Compare(a.Command.Name, b.Command.Name),
		)
	})

	previous := ""
	for _, command := range sorted {
		if label := moduleLabel(command); label != previous {
			fmt.Fprintf(&out, "\n\n(%s)", label)
			previous = label
		}
		out.WriteString("\n  " + command.Command.Synopsis())
		if description := strings.TrimSpace(command.Command.Description); description != "" {
			out.WriteString(" - " + description)
		}
	}

	return out.String()
}

func moduleLabel(command sandwich.RegisteredCommand) string {
	if name := strings.TrimSpace(command.ModuleName); name != "" {
		return name
	}

	return "unknown"
}

var (
	_ sandwich.Module          = (*Module)(nil)
	_ sandwich.ModuleRegistrar = (*Module)(nil)
)
