package whitelist

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sandwich/pkg/sandwich"
)

// Store is a concurrency-safe in-memory sandwich.Whitelist.
//
// Actors are keyed by platform user id. Lists are not persisted, so changes
// made with !addwl last until the process restarts.
type Store struct {
	owners map[string]struct{}

	mu     sync.RWMutex
	scopes map[sandwich.WhitelistScope]map[string]struct{}
}

// StoreOption mutates store construction.
type StoreOption func(*Store)

// WithOwners configures the actor ids that are always allowed.
func WithOwners(ids ...string) StoreOption {
	return func(store *Store) {
		addIDs(store.owners, ids)
	}
}

// WithMembers seeds scope with actor ids.
func WithMembers(scope sandwich.WhitelistScope, ids ...string) StoreOption {
	return func(store *Store) {
		members, exists := store.scopes[scope]
		if !exists {
			members = make(map[string]struct{}, len(ids))
			store.scopes[scope] = members
		}
		addIDs(members, ids)
	}
}

// NewStore creates a whitelist store.
func NewStore(options ...StoreOption) *Store {
	store := &Store{
		owners: make(map[string]struct{}),
		scopes: make(map[sandwich.WhitelistScope]map[string]struct{}),
	}
	for _, option := range options {
		option(store)
	}

	return store
}

// IsOwner reports whether actor is a configured owner.
func (s *Store) IsOwner(actor sandwich.Actor) bool {
	_, owner := s.owners[actor.ID]

	return actor.ID != "" && owner
}

// Allowed reports whether actor is an owner or listed in any of scopes.
func (s *Store) Allowed(ctx context.Context, actor sandwich.Actor, scopes ...sandwich.WhitelistScope) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("whitelist allowed: %w", err)
	}
	if actor.ID == "" {
		return false, nil
	}
	if s.IsOwner(actor) {
		return true, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, scope := range scopes {
		if _, listed := s.scopes[scope][actor.ID]; listed {
			return true, nil
		}
	}

	return false, nil
}

// Add lists actors in scope and returns how many were newly added.
func (s *Store) Add(ctx context.Context, scope sandwich.WhitelistScope, actors ...sandwich.Actor) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("whitelist add: %w", err)
	}
	if err := validateScope(scope); err != nil {
		return 0, fmt.Errorf("whitelist add: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, exists := s.scopes[scope]
	if !exists {
		members = make(map[string]struct{}, len(actors))
		s.scopes[scope] = members
	}
	added := 0
	for _, actor := range actors {
		if actor.ID == "" {
			continue
		}
		if _, listed := members[actor.ID]; listed {
			continue
		}
		members[actor.ID] = struct{}{}
		added++
	}

	return added, nil
}

// Remove unlists actors from scope and returns how many were removed.
func (s *Store) Remove(ctx context.Context, scope sandwich.WhitelistScope, actors ...sandwich.Actor) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("whitelist remove: %w", err)
	}
	if err := validateScope(scope); err != nil {
		return 0, fmt.Errorf("whitelist remove: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.scopes[scope]
	removed := 0
	for _, actor := range actors {
		if _, listed := members[actor.ID]; !listed {
			continue
		}
		delete(members, actor.ID)
		removed++
	}

	return removed, nil
}

func validateScope(scope sandwich.WhitelistScope) error {
	switch scope {
	case sandwich.WhitelistScopeGeneral, sandwich.WhitelistScopeAI:
		return nil
	default:
		return fmt.Errorf("unsupported scope %q", scope)
	}
}

func addIDs(set map[string]struct{}, ids []string) {
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
}

var _ sandwich.Whitelist = (*Store)(nil)
