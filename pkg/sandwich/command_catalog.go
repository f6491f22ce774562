package sandwich

import "context"

// ServiceCommandCatalog is the canonical service registry key for command discovery.
const ServiceCommandCatalog = "sandwich.command_catalog"

// RegisteredCommand describes one runtime command registration entry.
type RegisteredCommand struct {
	// ModuleName identifies which module registered this command.
	ModuleName string
	// Command is the registered definition.
	Command CommandSpec
}

// CommandCatalog provides read access to registered command definitions.
//
// Implementations must be concurrency-safe; returned slices are copies.
type CommandCatalog interface {
	// ListCommands returns all currently registered command entries.
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}
