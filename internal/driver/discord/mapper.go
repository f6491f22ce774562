package discord

import (
	"time"

	"sandwich/pkg/sandwich"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// mapMessageCreate converts a gateway MESSAGE_CREATE into a neutral event.
func mapMessageCreate(created *discordgo.MessageCreate) (*sandwich.Event, bool) {
	if created == nil || created.Message == nil || created.Author == nil {
		return nil, false
	}
	message := created.Message

	occurredAt := message.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := newBaseEvent(sandwich.EventKindMessageCreated, message, occurredAt)
	event.Message = &sandwich.Message{
		ID:       message.ID,
		Text:     message.Content,
		Mentions: mapUsers(message.Mentions),
		Media:    mapAttachments(message.Attachments),
	}
	if message.MessageReference != nil {
		event.Message.ReplyToID = message.MessageReference.MessageID
	}

	return event, true
}

// mapMessageUpdate converts a gateway MESSAGE_UPDATE into an edit event.
//
// Partial updates without an author (link unfurls, pins) carry no content
// change and are skipped.
func mapMessageUpdate(updated *discordgo.MessageUpdate) (*sandwich.Event, bool) {
	if updated == nil || updated.Message == nil || updated.Author == nil {
		return nil, false
	}
	message := updated.Message

	occurredAt := time.Now().UTC()
	if message.EditedTimestamp != nil && !message.EditedTimestamp.IsZero() {
		occurredAt = message.EditedTimestamp.UTC()
	}

	event := newBaseEvent(sandwich.EventKindMessageEdited, message, occurredAt)
	event.Mutation = &sandwich.Mutation{
		Type:            sandwich.MutationTypeEdit,
		TargetMessageID: message.ID,
		After: &sandwich.MessageSnapshot{
			Text:     message.Content,
			Mentions: mapUsers(message.Mentions),
			Media:    mapAttachments(message.Attachments),
		},
	}
	if updated.BeforeUpdate != nil {
		event.Mutation.Before = &sandwich.MessageSnapshot{
			Text:     updated.BeforeUpdate.Content,
			Mentions: mapUsers(updated.BeforeUpdate.Mentions),
			Media:    mapAttachments(updated.BeforeUpdate.Attachments),
		}
	}

	return event, true
}

// mapMessageDelete converts a gateway MESSAGE_DELETE into a retraction event.
func mapMessageDelete(deleted *discordgo.MessageDelete) (*sandwich.Event, bool) {
	if deleted == nil || deleted.Message == nil || deleted.ID == "" {
		return nil, false
	}
	message := deleted.Message

	event := newBaseEvent(sandwich.EventKindMessageRetracted, message, time.Now().UTC())
	event.Mutation = &sandwich.Mutation{
		Type:            sandwich.MutationTypeRetraction,
		TargetMessageID: message.ID,
	}
	if deleted.BeforeDelete != nil {
		event.Actor = mapUser(deleted.BeforeDelete.Author)
		event.Mutation.Before = &sandwich.MessageSnapshot{
			Text:  deleted.BeforeDelete.Content,
			Media: mapAttachments(deleted.BeforeDelete.Attachments),
		}
	}

	return event, true
}

func newBaseEvent(kind sandwich.EventKind, message *discordgo.Message, occurredAt time.Time) *sandwich.Event {
	event := &sandwich.Event{
		ID:           uuid.NewString(),
		Kind:         kind,
		OccurredAt:   occurredAt,
		Source:       sandwich.EventSource{Platform: DriverPlatform},
		Conversation: conversationOf(message),
		Actor:        mapUser(message.Author),
	}
	if message.GuildID != "" {
		event.Metadata = map[string]string{"guild_id": message.GuildID}
	}

	return event
}

// conversationOf scopes a message by channel; direct messages carry no guild.
func conversationOf(message *discordgo.Message) sandwich.Conversation {
	conversationType := sandwich.ConversationTypeGroup
	if message.GuildID == "" {
		conversationType = sandwich.ConversationTypePrivate
	}

	return sandwich.Conversation{
		ID:   message.ChannelID,
		Type: conversationType,
	}
}

func mapUser(user *discordgo.User) sandwich.Actor {
	if user == nil {
		return sandwich.Actor{}
	}

	displayName := user.GlobalName
	if displayName == "" {
		displayName = user.Username
	}

	return sandwich.Actor{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: displayName,
		IsBot:       user.Bot,
	}
}

func mapUsers(users []*discordgo.User) []sandwich.Actor {
	if len(users) == 0 {
		return nil
	}

	mapped := make([]sandwich.Actor, 0, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		mapped = append(mapped, mapUser(user))
	}

	return mapped
}

func mapAttachments(attachments []*discordgo.MessageAttachment) []sandwich.MediaAttachment {
	if len(attachments) == 0 {
		return nil
	}

	mapped := make([]sandwich.MediaAttachment, 0, len(attachments))
	for _, attachment := range attachments {
		if attachment == nil {
			continue
		}
		mapped = append(mapped, sandwich.MediaAttachment{
			ID:        attachment.ID,
			MIMEType:  attachment.ContentType,
			FileName:  attachment.Filename,
			SizeBytes: int64(attachment.Size),
			URI:       attachment.URL,
		})
	}

	return mapped
}
