package telegram

import (
	"strconv"
	"strings"

	"sandwich/pkg/sandwich"

	"github.com/gotd/td/tg"
)

// entities indexes the users and chats Telegram sends alongside an update
// batch. Lookups of IDs outside the batch fall back to bare IDs.
type entities struct {
	users map[int64]*tg.User
	chats map[int64]chatEntity
}

type chatEntity struct {
	title string
	kind  sandwich.ConversationType
	peer  tg.InputPeerClass
}

func newEntities(users []tg.UserClass, chats []tg.ChatClass) entities {
	ents := entities{
		users: make(map[int64]*tg.User, len(users)),
		chats: make(map[int64]chatEntity, len(chats)),
	}
	for _, raw := range users {
		if user, ok := raw.(*tg.User); ok {
			ents.users[user.ID] = user
		}
	}
	for _, raw := range chats {
		switch chat := raw.(type) {
		case *tg.Chat:
			ents.chats[chat.ID] = chatEntity{chat.Title, sandwich.ConversationTypeGroup, chat.AsInputPeer()}
		case *tg.ChatForbidden:
			ents.chats[chat.ID] = chatEntity{chat.Title, sandwich.ConversationTypeGroup, &tg.InputPeerChat{ChatID: chat.ID}}
		case *tg.Channel:
			ents.chats[chat.ID] = chatEntity{chat.Title, channelKind(chat.Megagroup), chat.AsInputPeer()}
		case *tg.ChannelForbidden:
			peer := &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}
			ents.chats[chat.ID] = chatEntity{chat.Title, channelKind(chat.Megagroup), peer}
		}
	}

	return ents
}

// channelKind treats supergroups as groups and broadcast channels as channels.
func channelKind(megagroup bool) sandwich.ConversationType {
	if megagroup {
		return sandwich.ConversationTypeGroup
	}

	return sandwich.ConversationTypeChannel
}

func (e entities) user(id int64) sandwich.Actor {
	if id == 0 {
		return sandwich.Actor{}
	}
	actor := sandwich.Actor{ID: strconv.FormatInt(id, 10)}

	user, ok := e.users[id]
	if !ok {
		return actor
	}
	actor.Username = user.Username
	actor.IsBot = user.Bot
	actor.DisplayName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	if actor.DisplayName == "" {
		actor.DisplayName = user.Username
	}
	if actor.DisplayName == "" {
		actor.DisplayName = actor.ID
	}

	return actor
}

// author resolves who a peer is. Channel posts are authored by the channel.
func (e entities) author(peer tg.PeerClass) sandwich.Actor {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return e.user(typed.UserID)
	case *tg.PeerChat:
		return sandwich.Actor{ID: strconv.FormatInt(typed.ChatID, 10), DisplayName: e.chats[typed.ChatID].title}
	case *tg.PeerChannel:
		return sandwich.Actor{ID: strconv.FormatInt(typed.ChannelID, 10), DisplayName: e.chats[typed.ChannelID].title}
	}

	return sandwich.Actor{}
}

// conversation resolves the chat a message peer points at. Private chats
// are named after the other user.
func (e entities) conversation(peer tg.PeerClass) sandwich.Conversation {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		other := e.user(typed.UserID)
		return sandwich.Conversation{ID: other.ID, Type: sandwich.ConversationTypePrivate, Title: other.DisplayName}
	case *tg.PeerChat:
		return e.chat(typed.ChatID, sandwich.ConversationTypeGroup)
	case *tg.PeerChannel:
		return e.chat(typed.ChannelID, sandwich.ConversationTypeChannel)
	}

	return sandwich.Conversation{}
}

func (e entities) chat(id int64, fallback sandwich.ConversationType) sandwich.Conversation {
	conversation := sandwich.Conversation{ID: strconv.FormatInt(id, 10), Type: fallback}
	if chat, ok := e.chats[id]; ok {
		conversation.Type = chat.kind
		conversation.Title = chat.title
	}

	return conversation
}

// inputPeer returns the peer outbound calls need to reach peer, or nil if
// the batch lacked its access hash.
func (e entities) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user, ok := e.users[typed.UserID]; ok {
			return user.AsInputPeer()
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: typed.ChatID}
	case *tg.PeerChannel:
		if chat, ok := e.chats[typed.ChannelID]; ok {
			return chat.peer
		}
	}

	return nil
}
