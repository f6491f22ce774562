package telegram

import (
	"testing"
	"time"

	"sandwich/pkg/sandwich"

	"github.com/gotd/td/tg"
)

func newTestMapper() eventMapper {
	return eventMapper{
		peers: NewPeerCache(),
		now:   func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestEventMapperNewMessage(t *testing.T) {
	t.Parallel()

	mapper := newTestMapper()
	message := groupMessage(7, "!gitlines owner/repo")
	header := &tg.MessageReplyHeader{}
	header.SetReplyToMsgID(6)
	message.SetReplyTo(header)
	message.SetEntities([]tg.MessageEntityClass{&tg.MessageEntityMentionName{UserID: testUserID}})

	events := mapper.events(incoming{
		update: &tg.UpdateNewMessage{Message: message},
		date:   unixTime(1700000000),
		ents:   testEntities(),
	})
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	event := events[0]
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if event.Kind != sandwich.EventKindMessageCreated {
		t.Fatalf("kind = %s", event.Kind)
	}
	wantConversation := sandwich.Conversation{ID: "42", Type: sandwich.ConversationTypeGroup, Title: "crew"}
	if event.Conversation != wantConversation {
		t.Fatalf("conversation = %+v, want %+v", event.Conversation, wantConversation)
	}
	if event.Actor.ID != "5" || event.Actor.DisplayName != "Ada L" || event.Actor.Username != "ada" {
		t.Fatalf("actor = %+v", event.Actor)
	}
	if event.Message.ID != "7" || event.Message.ReplyToID != "6" {
		t.Fatalf("message = %+v", event.Message)
	}
	if len(event.Message.Mentions) != 1 || event.Message.Mentions[0].ID != "5" {
		t.Fatalf("mentions = %+v", event.Message.Mentions)
	}
	if event.Metadata["gotd_update"] != "updateNewMessage" {
		t.Fatalf("metadata = %v", event.Metadata)
	}

	if got, ok := mapper.peers.ConversationOf(7); !ok || got.ID != "42" {
		t.Fatalf("message index = %+v, %v", got, ok)
	}
	if _, err := mapper.peers.Resolve(wantConversation); err != nil {
		t.Fatalf("peer not learned: %v", err)
	}
}

func TestEventMapperEdit(t *testing.T) {
	t.Parallel()

	mapper := newTestMapper()
	message := groupMessage(7, "!help")
	message.SetEditDate(1700000100)

	events := mapper.events(incoming{update: &tg.UpdateEditMessage{Message: message}, ents: testEntities()})
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	event := events[0]
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if event.Kind != sandwich.EventKindMessageEdited || event.Mutation.TargetMessageID != "7" {
		t.Fatalf("event = %+v", event)
	}
	if event.Mutation.After == nil || event.Mutation.After.Text != "!help" {
		t.Fatalf("after = %+v", event.Mutation.After)
	}
	if !event.OccurredAt.Equal(time.Unix(1700000100, 0)) {
		t.Fatalf("occurred at = %s, want edit date", event.OccurredAt)
	}
}

func TestEventMapperRetractions(t *testing.T) {
	t.Parallel()

	mapper := newTestMapper()
	mapper.events(incoming{update: &tg.UpdateNewMessage{Message: groupMessage(7, "a")}, ents: testEntities()})
	mapper.events(incoming{update: &tg.UpdateNewMessage{Message: groupMessage(8, "b")}, ents: testEntities()})

	events := mapper.events(incoming{update: &tg.UpdateDeleteMessages{Messages: []int{7, 8, 99}}})
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (unknown message skipped)", len(events))
	}
	for i, want := range []string{"7", "8"} {
		event := events[i]
		if err := event.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if event.Kind != sandwich.EventKindMessageRetracted || event.Mutation.TargetMessageID != want {
			t.Fatalf("event %d = %+v", i, event)
		}
		if event.Conversation.ID != "42" {
			t.Fatalf("event %d conversation = %+v", i, event.Conversation)
		}
		if !event.OccurredAt.Equal(mapper.now()) {
			t.Fatalf("event %d occurred at = %s, want fallback clock", i, event.OccurredAt)
		}
	}

	channel := mapper.events(incoming{
		update: &tg.UpdateDeleteChannelMessages{ChannelID: testChannelID, Messages: []int{3}},
		date:   unixTime(1700000000),
		ents:   testEntities(),
	})
	if len(channel) != 1 || channel[0].Conversation.ID != "900" || channel[0].Conversation.Type != sandwich.ConversationTypeGroup {
		t.Fatalf("channel retraction = %+v", channel)
	}
}

func TestEventMapperSkipsUnsupported(t *testing.T) {
	t.Parallel()

	mapper := newTestMapper()
	tests := []struct {
		name   string
		update tg.UpdateClass
	}{
		{name: "service message", update: &tg.UpdateNewMessage{Message: &tg.MessageService{ID: 1, PeerID: &tg.PeerChat{ChatID: testChatID}}}},
		{name: "empty message", update: &tg.UpdateNewMessage{Message: &tg.MessageEmpty{ID: 1}}},
		{name: "typing", update: &tg.UpdateUserTyping{UserID: testUserID}},
	}

	for _, testCase := range tests {
		if events := mapper.events(incoming{update: testCase.update, ents: testEntities()}); len(events) != 0 {
			t.Fatalf("%s: events = %d, want 0", testCase.name, len(events))
		}
	}
}

func TestMediaOf(t *testing.T) {
	t.Parallel()

	document := &tg.Document{
		ID:         11,
		MimeType:   "application/zip",
		Size:       2048,
		Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: "repo.zip"}},
	}
	got := mediaOf(&tg.MessageMediaDocument{Document: document})
	want := sandwich.MediaAttachment{ID: "11", MIMEType: "application/zip", FileName: "repo.zip", SizeBytes: 2048}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("mediaOf(document) = %+v, want %+v", got, want)
	}

	photo := mediaOf(&tg.MessageMediaPhoto{Photo: &tg.Photo{ID: 12}})
	if len(photo) != 1 || photo[0].MIMEType != "image/jpeg" {
		t.Fatalf("mediaOf(photo) = %+v", photo)
	}
	if mediaOf(nil) != nil {
		t.Fatal("mediaOf(nil) should be empty")
	}
}
