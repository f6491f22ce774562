package utility

import (
	"context"
	"fmt"
	"net/url"

	"sandwich/pkg/sandwich"
)

const googleSearchURL = "https://google.com/search?q="

func (m *Module) handleReplyCommand(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}

	var text string
	switch event.Command.Name {
	case googleCommandName:
		text = googleSearchURL + url.QueryEscape(event.Command.Value)
	case howCommandName:
		text = "magic"
	default:
		return nil
	}

	request, err := sandwich.ReplyTo(event, text)
	if err != nil {
		return fmt.Errorf("utility %s derive reply: %w", event.Command.Name, err)
	}
	if _, err := sandwich.SendReply(ctx, m.replies, request); err != nil {
		return fmt.Errorf("utility %s reply: %w", event.Command.Name, err)
	}

	return nil
}

func (m *Module) handleChannelCommand(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}

	history, ok := m.dispatcher.(sandwich.HistoryDispatcher)
	if !ok {
		return fmt.Errorf("utility %s: %w: history operations", event.Command.Name, sandwich.ErrOutboundUnsupported)
	}
	target, err := sandwich.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("utility %s derive outbound target: %w", event.Command.Name, err)
	}

	switch event.Command.Name {
	case nukeSelfCommandName:
		return m.nukeSelf(ctx, history, target, event.Message.ID)
	case nukeReactionsCommandName:
		return m.nukeReactions(ctx, history, target)
	default:
		return nil
	}
}

// nukeSelf deletes the bot's own recent messages, then confirms on the command.
func (m *Module) nukeSelf(
	ctx context.Context,
	history sandwich.HistoryDispatcher,
	target sandwich.OutboundTarget,
	commandMessageID string,
) error {
	recent, err := history.ListMessages(ctx, sandwich.ListMessagesRequest{
		Target: target,
		Limit:  m.nukeSelfScanLimit,
	})
	if err != nil {
		return fmt.Errorf("utility ns list messages: %w", err)
	}

	own := make([]string, 0, len(recent))
	for _, message := range recent {
		if message.FromSelf {
			own = append(own, message.ID)
		}
	}
	if len(own) > 0 {
		if err := history.DeleteMessages(ctx, sandwich.DeleteMessagesRequest{
			Target:     target,
			MessageIDs: own,
		}); err != nil {
			return fmt.Errorf("utility ns delete %d messages: %w", len(own), err)
		}
	}

	m.logger.InfoContext(ctx, "deleted own messages",
		"conversation_id", target.Conversation.ID,
		"scanned", len(recent),
		"deleted", len(own),
	)

	if err := m.dispatcher.SetReaction(ctx, sandwich.SetReactionRequest{
		Target:    target,
		MessageID: commandMessageID,
		Emoji:     confirmEmoji,
		Action:    sandwich.ReactionActionAdd,
	}); err != nil {
		return fmt.Errorf("utility ns confirm: %w", err)
	}

	return nil
}

// nukeReactions clears every reaction on recent messages.
func (m *Module) nukeReactions(
	ctx context.Context,
	history sandwich.HistoryDispatcher,
	target sandwich.OutboundTarget,
) error {
	recent, err := history.ListMessages(ctx, sandwich.ListMessagesRequest{
		Target: target,
		Limit:  m.nukeReactionsLimit,
	})
	if err != nil {
		return fmt.Errorf("utility nr list messages: %w", err)
	}

	cleared := 0
	for _, message := range recent {
		if !message.HasReactions {
			continue
		}
		err := history.ClearReactions(ctx, sandwich.ClearReactionsRequest{
			Target:    target,
			MessageID: message.ID,
		})
		if sandwich.IsOutboundNotFound(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("utility nr clear reactions on %s: %w", message.ID, err)
		}
		cleared++
	}

	m.logger.InfoContext(ctx, "cleared reactions",
		"conversation_id", target.Conversation.ID,
		"scanned", len(recent),
		"cleared", cleared,
	)

	return nil
}

func (m *Module) handleRestart(ctx context.Context, event *sandwich.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Command.Name != restartCommandName {
		return nil
	}
	if !m.whitelist.IsOwner(event.Actor) {
		m.logger.DebugContext(ctx, "restart rejected for non-owner", "actor_id", event.Actor.ID)
		return nil
	}

	target, err := sandwich.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("utility restart derive outbound target: %w", err)
	}
	if err := m.dispatcher.SetReaction(ctx, sandwich.SetReactionRequest{
		Target:    target,
		MessageID: event.Message.ID,
		Emoji:     confirmEmoji,
		Action:    sandwich.ReactionActionAdd,
	}); err != nil {
		return fmt.Errorf("utility restart confirm: %w", err)
	}

	reason := fmt.Sprintf("!restart by %s", event.Actor.ID)
	if err := m.restarter.RequestRestart(ctx, reason); err != nil {
		return fmt.Errorf("utility restart: %w", err)
	}

	return nil
}
