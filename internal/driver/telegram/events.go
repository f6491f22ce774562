package telegram

import (
	"strconv"
	"time"

	"sandwich/pkg/sandwich"

	"github.com/google/uuid"
	"github.com/gotd/td/tg"
)

// eventMapper turns queued updates into neutral events and teaches the
// peer cache every peer it sees on the way.
type eventMapper struct {
	peers *PeerCache
	now   func() time.Time
}

// events maps one update. Updates other than new, edited and deleted
// messages map to nothing; a deletion of several messages maps to one
// retraction per message.
func (m eventMapper) events(item incoming) []*sandwich.Event {
	m.peers.learn(item.ents)

	switch update := item.update.(type) {
	case *tg.UpdateNewMessage:
		return m.message(item, update.Message, false)
	case *tg.UpdateNewChannelMessage:
		return m.message(item, update.Message, false)
	case *tg.UpdateEditMessage:
		return m.message(item, update.Message, true)
	case *tg.UpdateEditChannelMessage:
		return m.message(item, update.Message, true)
	case *tg.UpdateDeleteMessages:
		return m.retractions(item, update.Messages, m.peers.ConversationOf)
	case *tg.UpdateDeleteChannelMessages:
		conversation := item.ents.chat(update.ChannelID, sandwich.ConversationTypeChannel)
		if peer, ok := item.ents.chats[update.ChannelID]; ok {
			m.peers.Remember(conversation, peer.peer)
		}
		return m.retractions(item, update.Messages, func(int) (sandwich.Conversation, bool) {
			return conversation, true
		})
	}

	return nil
}

func (m eventMapper) message(item incoming, raw tg.MessageClass, edited bool) []*sandwich.Event {
	// Service messages (joins, pins, title changes) are not *tg.Message.
	message, ok := raw.(*tg.Message)
	if !ok {
		return nil
	}

	conversation := item.ents.conversation(message.PeerID)
	if conversation.ID == "" {
		return nil
	}
	m.peers.Remember(conversation, item.ents.inputPeer(message.PeerID))
	if _, channel := message.PeerID.(*tg.PeerChannel); !channel {
		m.peers.RememberMessage(message.ID, conversation)
	}

	author := item.ents.author(message.FromID)
	if author.ID == "" && !message.Out {
		author = item.ents.author(message.PeerID)
	}

	at := unixTime(message.Date)
	if editDate, ok := message.GetEditDate(); ok && edited {
		at = unixTime(editDate)
	}

	id := strconv.Itoa(message.ID)
	mentions := mentionsOf(message.Entities, item.ents)
	media := mediaOf(message.Media)

	if edited {
		event := m.newEvent(sandwich.EventKindMessageEdited, item, conversation, at)
		event.Actor = author
		event.Mutation = &sandwich.Mutation{
			Type:            sandwich.MutationTypeEdit,
			TargetMessageID: id,
			After:           &sandwich.MessageSnapshot{Text: message.Message, Mentions: mentions, Media: media},
		}
		return []*sandwich.Event{event}
	}

	event := m.newEvent(sandwich.EventKindMessageCreated, item, conversation, at)
	event.Actor = author
	event.Message = &sandwich.Message{ID: id, Text: message.Message, Mentions: mentions, Media: media}
	if header, ok := message.ReplyTo.(*tg.MessageReplyHeader); ok {
		if parent, ok := header.GetReplyToMsgID(); ok {
			event.Message.ReplyToID = strconv.Itoa(parent)
		}
	}

	return []*sandwich.Event{event}
}

// retractions skips messages whose chat cannot be resolved.
func (m eventMapper) retractions(
	item incoming,
	messageIDs []int,
	conversationOf func(int) (sandwich.Conversation, bool),
) []*sandwich.Event {
	var events []*sandwich.Event
	for _, messageID := range messageIDs {
		conversation, ok := conversationOf(messageID)
		if !ok {
			continue
		}
		event := m.newEvent(sandwich.EventKindMessageRetracted, item, conversation, item.date)
		event.Mutation = &sandwich.Mutation{
			Type:            sandwich.MutationTypeRetraction,
			TargetMessageID: strconv.Itoa(messageID),
		}
		events = append(events, event)
	}

	return events
}

func (m eventMapper) newEvent(
	kind sandwich.EventKind,
	item incoming,
	conversation sandwich.Conversation,
	at time.Time,
) *sandwich.Event {
	if at.IsZero() {
		at = item.date
	}
	if at.IsZero() {
		at = m.now().UTC()
	}

	return &sandwich.Event{
		ID:           uuid.NewString(),
		Kind:         kind,
		OccurredAt:   at,
		Source:       sandwich.EventSource{Platform: DriverPlatform},
		Conversation: conversation,
		Metadata:     map[string]string{"gotd_update": item.update.TypeName()},
	}
}

// mentionsOf collects users mentioned by ID. Plain @username mentions are
// left in the text.
func mentionsOf(entities []tg.MessageEntityClass, ents entities) []sandwich.Actor {
	var mentions []sandwich.Actor
	for _, entity := range entities {
		if mention, ok := entity.(*tg.MessageEntityMentionName); ok {
			mentions = append(mentions, ents.user(mention.UserID))
		}
	}

	return mentions
}

func mediaOf(media tg.MessageMediaClass) []sandwich.MediaAttachment {
	switch typed := media.(type) {
	case *tg.MessageMediaPhoto:
		if photo, ok := typed.Photo.(*tg.Photo); ok {
			return []sandwich.MediaAttachment{{ID: strconv.FormatInt(photo.ID, 10), MIMEType: "image/jpeg"}}
		}
	case *tg.MessageMediaDocument:
		document, ok := typed.Document.(*tg.Document)
		if !ok {
			return nil
		}
		attachment := sandwich.MediaAttachment{
			ID:        strconv.FormatInt(document.ID, 10),
			MIMEType:  document.MimeType,
			SizeBytes: document.Size,
		}
		for _, attribute := range document.Attributes {
			if name, ok := attribute.(*tg.DocumentAttributeFilename); ok {
				attachment.FileName = name.FileName
			}
		}
		return []sandwich.MediaAttachment{attachment}
	}

	return nil
}
