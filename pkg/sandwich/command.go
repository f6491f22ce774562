package sandwich

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/shlex"
)

// CommandPrefix starts every command message.
const CommandPrefix = "!"

// CommandCandidate is a message that looks like a command but has not
// been matched against a registered CommandSpec yet.
type CommandCandidate struct {
	// Name is lowercase and carries no prefix.
	Name string
	// RawInput is the message text as received.
	RawInput string
	// Tail is everything after the name, trimmed. Line breaks survive.
	Tail string
	Args []string
}

// CommandInvocation is a command bound to its spec, carried on
// EventKindCommandReceived events.
type CommandInvocation struct {
	Name string
	// Value is the trimmed tail of the command message.
	Value string
	Args  []string
	// SourceEventID and SourceEventKind name the message event that
	// carried the command.
	SourceEventID   string
	SourceEventKind EventKind
	RawInput        string
}

func (c *CommandInvocation) Validate() error {
	var missing string
	switch {
	case c == nil:
		return fmt.Errorf("command invocation: nil")
	case commandName(c.Name) == "":
		missing = "name"
	case c.SourceEventID == "":
		missing = "source event id"
	case c.SourceEventKind == "":
		missing = "source event kind"
	}
	if missing != "" {
		return fmt.Errorf("command invocation: missing %s", missing)
	}

	return nil
}

// CommandSpec is what a module registers to receive a command.
type CommandSpec struct {
	Name string
	// Usage follows the name in help output, e.g. "<repo> <ext...>".
	Usage       string
	Description string
	// MinArgs rejects invocations with fewer tail tokens.
	MinArgs int
}

func (s CommandSpec) Validate() error {
	name := commandName(s.Name)
	switch {
	case name == "":
		return fmt.Errorf("command spec: missing name")
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return fmt.Errorf("command spec %q: name contains whitespace", s.Name)
	case strings.HasPrefix(name, CommandPrefix):
		return fmt.Errorf("command spec %q: name must not include prefix %s", s.Name, CommandPrefix)
	case s.MinArgs < 0:
		return fmt.Errorf("command spec %s: negative min args", name)
	}

	return nil
}

// Synopsis is the command as a user would type it, e.g. "!gitlines <repo>".
func (s CommandSpec) Synopsis() string {
	parts := []string{CommandPrefix + commandName(s.Name)}
	if usage := strings.TrimSpace(s.Usage); usage != "" {
		parts = append(parts, usage)
	}

	return strings.Join(parts, " ")
}

// ParseCommandCandidate reports whether text is a command and splits it
// into name and arguments. The name ends at the first whitespace, so
// "!askai\nquestion" is the askai command. A bare or doubled prefix is not
// a command.
func ParseCommandCandidate(text string) (CommandCandidate, bool, error) {
	candidate := CommandCandidate{RawInput: text}

	body, ok := strings.CutPrefix(strings.TrimSpace(text), CommandPrefix)
	if !ok || body == "" || strings.HasPrefix(body, CommandPrefix) {
		return candidate, false, nil
	}

	name, tail := body, ""
	if end := strings.IndexFunc(body, unicode.IsSpace); end >= 0 {
		name, tail = body[:end], body[end:]
	}
	candidate.Name = commandName(name)
	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command: missing name")
	}
	candidate.Tail = strings.TrimSpace(tail)
	if candidate.Tail != "" {
		candidate.Args = splitArgs(candidate.Tail)
	}

	return candidate, true, nil
}

// BindCommand matches candidate against spec. The returned error is fit
// to show the user next to the command's synopsis.
func BindCommand(candidate CommandCandidate, spec CommandSpec, source *Event) (CommandInvocation, error) {
	if source == nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: nil source event", spec.Name)
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command: %w", err)
	}

	name := commandName(spec.Name)
	if got := commandName(candidate.Name); got != name {
		return CommandInvocation{}, fmt.Errorf("bind command %s: name mismatch, got %q", name, got)
	}
	if len(candidate.Args) < spec.MinArgs {
		return CommandInvocation{}, fmt.Errorf("%s%s expected at least %d argument(s), got %d",
			CommandPrefix, name, spec.MinArgs, len(candidate.Args))
	}

	invocation := CommandInvocation{
		Name:            name,
		Value:           candidate.Tail,
		Args:            append([]string(nil), candidate.Args...),
		SourceEventID:   source.ID,
		SourceEventKind: source.Kind,
		RawInput:        candidate.RawInput,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", name, err)
	}

	return invocation, nil
}

// splitArgs honours shell quoting. Text that is not valid shell input,
// such as "don't", is split on whitespace instead.
func splitArgs(tail string) []string {
	if args, err := shlex.Split(tail); err == nil && len(args) > 0 {
		return args
	}

	return strings.Fields(tail)
}

func commandName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
