package telegram

import (
	"fmt"
	"sync"

	"sandwich/pkg/sandwich"

	"github.com/gotd/td/tg"
)

// messageIndexSize is how many private and basic-group messages PeerCache
// remembers the chat of.
const messageIndexSize = 4096

type peerKey struct {
	kind sandwich.ConversationType
	id   string
}

// PeerCache remembers the input peers seen on inbound updates so outbound
// calls can address a conversation by its neutral ID.
//
// Telegram reports deletions in private chats and basic groups without the
// chat, so PeerCache also keeps a bounded index from message ID to chat.
type PeerCache struct {
	mu    sync.RWMutex
	peers map[peerKey]tg.InputPeerClass

	chats map[int]sandwich.Conversation
	ring  [messageIndexSize]int
	head  int
}

func NewPeerCache() *PeerCache {
	return &PeerCache{
		peers: make(map[peerKey]tg.InputPeerClass),
		chats: make(map[int]sandwich.Conversation),
	}
}

// learn records every user and chat in ents.
func (c *PeerCache) learn(ents entities) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, user := range ents.users {
		c.store(sandwich.Conversation{ID: fmt.Sprint(id), Type: sandwich.ConversationTypePrivate}, user.AsInputPeer())
	}
	for id, chat := range ents.chats {
		c.store(sandwich.Conversation{ID: fmt.Sprint(id), Type: chat.kind}, chat.peer)
	}
}

// Remember maps conversation to peer. A nil peer is ignored.
func (c *PeerCache) Remember(conversation sandwich.Conversation, peer tg.InputPeerClass) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(conversation, peer)
}

func (c *PeerCache) store(conversation sandwich.Conversation, peer tg.InputPeerClass) {
	if peer == nil || conversation.ID == "" {
		return
	}
	c.peers[peerKey{conversation.Type, conversation.ID}] = copyPeer(peer)

	// Supergroups are groups to modules but channels to the API.
	if _, channel := peer.(*tg.InputPeerChannel); channel && conversation.Type == sandwich.ConversationTypeGroup {
		c.peers[peerKey{sandwich.ConversationTypeChannel, conversation.ID}] = copyPeer(peer)
	}
}

// RememberMessage records which chat messageID was posted in, evicting
// the oldest entry once the index is full.
func (c *PeerCache) RememberMessage(messageID int, conversation sandwich.Conversation) {
	if messageID == 0 || conversation.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, known := c.chats[messageID]; !known {
		if evicted := c.ring[c.head]; evicted != 0 {
			delete(c.chats, evicted)
		}
		c.ring[c.head] = messageID
		c.head = (c.head + 1) % messageIndexSize
	}
	c.chats[messageID] = conversation
}

// ConversationOf returns the chat a remembered message was posted in.
func (c *PeerCache) ConversationOf(messageID int) (sandwich.Conversation, bool) {
	if c == nil {
		return sandwich.Conversation{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	conversation, ok := c.chats[messageID]

	return conversation, ok
}

// Resolve returns a copy of the input peer for conversation. An untyped
// conversation matches any kind.
func (c *PeerCache) Resolve(conversation sandwich.Conversation) (tg.InputPeerClass, error) {
	if conversation.ID == "" {
		return nil, fmt.Errorf("resolve peer: empty conversation id")
	}

	kinds := []sandwich.ConversationType{conversation.Type}
	switch conversation.Type {
	case sandwich.ConversationTypeGroup:
		kinds = append(kinds, sandwich.ConversationTypeChannel)
	case sandwich.ConversationTypeChannel:
		kinds = append(kinds, sandwich.ConversationTypeGroup)
	case "":
		kinds = []sandwich.ConversationType{
			sandwich.ConversationTypePrivate,
			sandwich.ConversationTypeGroup,
			sandwich.ConversationTypeChannel,
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, kind := range kinds {
		if peer, ok := c.peers[peerKey{kind, conversation.ID}]; ok {
			return copyPeer(peer), nil
		}
	}

	return nil, fmt.Errorf("resolve peer: %s conversation %s never seen", conversation.Type, conversation.ID)
}

func copyPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		clone := *typed
		return &clone
	case *tg.InputPeerChat:
		clone := *typed
		return &clone
	case *tg.InputPeerChannel:
		clone := *typed
		return &clone
	}

	return peer
}
