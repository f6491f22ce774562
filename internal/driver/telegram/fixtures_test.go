package telegram

import (
	"github.com/gotd/td/tg"
)

const (
	testUserID    int64 = 5
	testChatID    int64 = 42
	testChannelID int64 = 900
)

func testEntities() entities {
	return newEntities(
		[]tg.UserClass{&tg.User{ID: testUserID, AccessHash: 55, FirstName: "Ada", LastName: "L", Username: "ada"}},
		[]tg.ChatClass{
			&tg.Chat{ID: testChatID, Title: "crew"},
			&tg.Channel{ID: testChannelID, AccessHash: 99, Title: "lounge", Megagroup: true},
		},
	)
}

func groupMessage(id int, text string) *tg.Message {
	message := &tg.Message{ID: id, Date: 1700000000, Message: text, PeerID: &tg.PeerChat{ChatID: testChatID}}
	message.SetFromID(&tg.PeerUser{UserID: testUserID})

	return message
}
