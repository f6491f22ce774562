package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

// incoming is one update taken out of its container, with the entities the
// container carried.
type incoming struct {
	update tg.UpdateClass
	date   time.Time
	ents   entities
}

// updateQueue is the gotd UpdateHandler of a session. Handle blocks while
// the queue is full so the client stops reading until the driver catches up.
type updateQueue struct {
	items chan incoming
}

func newUpdateQueue(size int) *updateQueue {
	if size <= 0 {
		size = 1024
	}

	return &updateQueue{items: make(chan incoming, size)}
}

func (q *updateQueue) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := unpackUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle updates: %w", err)
	}

	for _, item := range batch {
		select {
		case q.items <- item:
		case <-ctx.Done():
			return fmt.Errorf("handle updates: %w", ctx.Err())
		}
	}

	return nil
}

// unpackUpdates flattens one updates container. Short forms are expanded
// into the equivalent UpdateNewMessage.
func unpackUpdates(updates tg.UpdatesClass) ([]incoming, error) {
	var (
		list []tg.UpdateClass
		date int
		ents entities
	)
	switch typed := updates.(type) {
	case *tg.Updates:
		list, date, ents = typed.Updates, typed.Date, newEntities(typed.Users, typed.Chats)
	case *tg.UpdatesCombined:
		list, date, ents = typed.Updates, typed.Date, newEntities(typed.Users, typed.Chats)
	case *tg.UpdateShort:
		list, date = []tg.UpdateClass{typed.Update}, typed.Date
	case *tg.UpdateShortMessage:
		message := shortMessage(typed.ID, typed.Date, typed.Message, &tg.PeerUser{UserID: typed.UserID})
		if !typed.Out {
			message.SetFromID(&tg.PeerUser{UserID: typed.UserID})
		}
		message.Out = typed.Out
		attachShortExtras(message, typed.ReplyTo, typed.Entities)
		list, date = []tg.UpdateClass{&tg.UpdateNewMessage{Message: message, Pts: typed.Pts, PtsCount: typed.PtsCount}}, typed.Date
	case *tg.UpdateShortChatMessage:
		message := shortMessage(typed.ID, typed.Date, typed.Message, &tg.PeerChat{ChatID: typed.ChatID})
		message.SetFromID(&tg.PeerUser{UserID: typed.FromID})
		attachShortExtras(message, typed.ReplyTo, typed.Entities)
		list, date = []tg.UpdateClass{&tg.UpdateNewMessage{Message: message, Pts: typed.Pts, PtsCount: typed.PtsCount}}, typed.Date
	case *tg.UpdatesTooLong, *tg.UpdateShortSentMessage:
		return nil, nil
	case nil:
		return nil, fmt.Errorf("nil updates")
	default:
		return nil, fmt.Errorf("unsupported container %s", updates.TypeName())
	}

	at := unixTime(date)
	batch := make([]incoming, 0, len(list))
	for _, update := range list {
		if update != nil {
			batch = append(batch, incoming{update: update, date: at, ents: ents})
		}
	}

	return batch, nil
}

func shortMessage(id, date int, text string, peer tg.PeerClass) *tg.Message {
	return &tg.Message{ID: id, Date: date, Message: text, PeerID: peer}
}

func attachShortExtras(message *tg.Message, replyTo tg.MessageReplyHeaderClass, entities []tg.MessageEntityClass) {
	if replyTo != nil {
		message.SetReplyTo(replyTo)
	}
	if len(entities) > 0 {
		message.SetEntities(entities)
	}
}

func unixTime(seconds int) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(seconds), 0).UTC()
}
