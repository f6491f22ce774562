package kernel

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"sandwich/pkg/sandwich"
)

// commandTable records which module owns each command name. It doubles as
// the CommandCatalog service.
type commandTable struct {
	mu     sync.RWMutex
	owners map[string]sandwich.RegisteredCommand
}

func newCommandTable() *commandTable {
	return &commandTable{owners: map[string]sandwich.RegisteredCommand{}}
}

// claim registers every spec for module or none of them.
func (t *commandTable) claim(module string, specs []sandwich.CommandSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, spec := range specs {
		name := commandKey(spec.Name)
		if owner, taken := t.owners[name]; taken {
			return fmt.Errorf("claim command %s%s: owned by module %s", sandwich.CommandPrefix, name, owner.ModuleName)
		}
	}
	for _, spec := range specs {
		spec.Name = commandKey(spec.Name)
		t.owners[spec.Name] = sandwich.RegisteredCommand{ModuleName: module, Command: spec}
	}

	return nil
}

func (t *commandTable) release(module string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, owner := range t.owners {
		if owner.ModuleName == module {
			delete(t.owners, name)
		}
	}
}

func (t *commandTable) lookup(name string) (sandwich.CommandSpec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	owner, ok := t.owners[commandKey(name)]

	return owner.Command, ok
}

// ListCommands returns a copy of the table ordered by command name.
func (t *commandTable) ListCommands(ctx context.Context) ([]sandwich.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	t.mu.RLock()
	listed := make([]sandwich.RegisteredCommand, 0, len(t.owners))
	for _, owner := range t.owners {
		listed = append(listed, owner)
	}
	t.mu.RUnlock()

	slices.SortFunc(listed, func(a, b sandwich.RegisteredCommand) int {
		return cmp.Compare(a.Command.Name, b.Command.Name)
	})

	return listed, nil
}

func commandKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ sandwich.CommandCatalog = (*commandTable)(nil)
