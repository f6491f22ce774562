package sandwich

import "context"

// ServiceWhitelist is the canonical service registry key for the user whitelist.
const ServiceWhitelist = "sandwich.whitelist"

// WhitelistScope names one independently managed allow list.
type WhitelistScope string

const (
	// WhitelistScopeGeneral gates general privileged commands.
	WhitelistScopeGeneral WhitelistScope = "general"
	// WhitelistScopeAI additionally grants access to paid AI commands.
	WhitelistScopeAI WhitelistScope = "ai"
)

// Whitelist stores which actors may run gated commands.
//
// Owners are configured at startup and are always allowed.
type Whitelist interface {
	// IsOwner reports whether actor is a configured bot owner.
	IsOwner(actor Actor) bool
	// Allowed reports whether actor is an owner or listed in any of scopes.
	Allowed(ctx context.Context, actor Actor, scopes ...WhitelistScope) (bool, error)
	// Add lists actors in scope and returns how many were newly added.
	Add(ctx context.Context, scope WhitelistScope, actors ...Actor) (int, error)
	// Remove unlists actors from scope and returns how many were removed.
	Remove(ctx context.Context, scope WhitelistScope, actors ...Actor) (int, error)
}
