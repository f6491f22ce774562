package kernel

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"sandwich/pkg/sandwich"
)

// commandRouter is the sink handed to drivers. It forwards every source
// event and, for created or edited messages that invoke a registered
// command, also publishes a command.received event.
//
// The command event keeps the source message id, so answering an edited
// command reaches the same reply cache entry as the first answer.
type commandRouter struct {
	next     sandwich.EventSink
	commands *commandTable
	services sandwich.ServiceRegistry
	report   func(context.Context, string, error)
}

func (r *commandRouter) Publish(ctx context.Context, event *sandwich.Event) error {
	if event == nil {
		return fmt.Errorf("route event: %w: nil event", sandwich.ErrInvalidEvent)
	}
	if err := r.next.Publish(ctx, event); err != nil {
		return fmt.Errorf("route %s event: %w", event.Kind, err)
	}

	command, ok := r.derive(ctx, event)
	if !ok {
		return nil
	}
	if err := r.next.Publish(ctx, command); err != nil {
		return fmt.Errorf("route command %s: %w", command.Command.Name, err)
	}

	return nil
}

// derive builds the command event for source, answering malformed
// invocations with their usage line instead.
func (r *commandRouter) derive(ctx context.Context, source *sandwich.Event) (*sandwich.Event, bool) {
	if source.Actor.IsBot {
		return nil, false
	}
	message, ok := currentMessage(source)
	if !ok {
		return nil, false
	}

	candidate, matched, parseErr := sandwich.ParseCommandCandidate(message.Text)
	if !matched {
		return nil, false
	}
	spec, registered := r.commands.lookup(candidate.Name)
	if !registered {
		return nil, false
	}

	var invocation sandwich.CommandInvocation
	err := parseErr
	if err == nil {
		invocation, err = sandwich.BindCommand(candidate, spec, source)
	}
	if err != nil {
		if replyErr := r.sendUsage(ctx, source, fmt.Sprintf("%s\nusage: %s", err, spec.Synopsis())); replyErr != nil {
			r.report(ctx, "command usage reply", replyErr)
		}
		return nil, false
	}

	invocation.Args = slices.Clone(invocation.Args)

	return &sandwich.Event{
		ID:           source.ID + "#command",
		Kind:         sandwich.EventKindCommandReceived,
		OccurredAt:   source.OccurredAt,
		Source:       source.Source,
		Conversation: source.Conversation,
		Actor:        source.Actor,
		Message:      &message,
		Command:      &invocation,
		Metadata:     maps.Clone(source.Metadata),
	}, true
}

// sendUsage goes through the reply cache when one is registered, so fixing
// the command by editing it replaces the error in place.
func (r *commandRouter) sendUsage(ctx context.Context, source *sandwich.Event, text string) error {
	request, err := sandwich.ReplyTo(source, text)
	if err != nil {
		return err
	}

	if cache, err := sandwich.ResolveAs[sandwich.ReplyCache](r.services, sandwich.ServiceReplyCache); err == nil {
		_, err = sandwich.SendReply(ctx, cache, request)
		return err
	}

	dispatcher, err := sandwich.ResolveAs[sandwich.SinkDispatcher](r.services, sandwich.ServiceSinkDispatcher)
	if err != nil {
		return err
	}
	_, err = dispatcher.SendMessage(ctx, sandwich.SendMessageRequest{
		Target:           request.Target,
		Text:             request.Text,
		ReplyToMessageID: request.ReplyToMessageID,
	})

	return err
}

// currentMessage returns the message as it reads now: the created message,
// or the post-edit snapshot under the edited message id.
func currentMessage(event *sandwich.Event) (sandwich.Message, bool) {
	switch {
	case event.Kind == sandwich.EventKindMessageCreated && event.Message != nil:
		message := *event.Message
		message.Mentions = slices.Clone(message.Mentions)
		message.Media = slices.Clone(message.Media)
		return message, true
	case event.Kind == sandwich.EventKindMessageEdited && event.Mutation != nil &&
		event.Mutation.After != nil && event.Mutation.TargetMessageID != "":
		after := event.Mutation.After
		return sandwich.Message{
			ID:       event.Mutation.TargetMessageID,
			Text:     after.Text,
			Mentions: slices.Clone(after.Mentions),
			Media:    slices.Clone(after.Media),
		}, true
	}

	return sandwich.Message{}, false
}
