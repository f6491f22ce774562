package sandwich

import "slices"

// Capability names one thing a module handler does, the events it wants
// and the services that must be registered before it can run.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet filters events. Empty lists match anything.
type InterestSet struct {
	Kinds    []EventKind
	Commands []string
	// RequireMutation keeps only events that carry a Mutation.
	RequireMutation bool
}

// Matches reports whether event passes every filter in i.
func (i InterestSet) Matches(event *Event) bool {
	switch {
	case event == nil:
		return false
	case len(i.Kinds) > 0 && !slices.Contains(i.Kinds, event.Kind):
		return false
	case len(i.Commands) > 0 && (event.Command == nil || !slices.Contains(i.Commands, event.Command.Name)):
		return false
	case i.RequireMutation && event.Mutation == nil:
		return false
	default:
		return true
	}
}

// Allows reports whether filter is at least as narrow as i, so that a
// subscription using filter never sees an event i would reject. A filter
// that leaves a list empty is wider than any non-empty list in i.
func (i InterestSet) Allows(filter InterestSet) bool {
	return narrower(filter.Kinds, i.Kinds) &&
		narrower(filter.Commands, i.Commands) &&
		(!i.RequireMutation || filter.RequireMutation)
}

func narrower[T comparable](filter, allowed []T) bool {
	if len(allowed) == 0 {
		return true
	}
	if len(filter) == 0 {
		return false
	}

	return !slices.ContainsFunc(filter, func(item T) bool { return !slices.Contains(allowed, item) })
}
