package sandwich

import (
	"errors"
	"testing"
)

func TestOutboundRequestValidation(t *testing.T) {
	t.Parallel()

	target := OutboundTarget{
		Conversation: Conversation{ID: "chan-1", Type: ConversationTypeGroup},
		Sink:         &SinkRef{Platform: PlatformDiscord, ID: "discord-main"},
	}
	file := Attachment{FileName: "response.txt", Data: []byte("x")}

	tests := []struct {
		name    string
		request interface{ Validate() error }
		valid   bool
	}{
		{name: "send text", request: SendMessageRequest{Target: target, Text: "hello"}, valid: true},
		{name: "send embed", request: SendMessageRequest{Target: target, Embed: &Embed{Title: "t"}}, valid: true},
		{name: "send file", request: SendMessageRequest{Target: target, Attachments: []Attachment{file}}, valid: true},
		{name: "send empty embed", request: SendMessageRequest{Target: target, Embed: &Embed{}}},
		{name: "send unnamed file", request: SendMessageRequest{Target: target, Text: "x", Attachments: []Attachment{{Data: []byte("x")}}}},
		{name: "edit embed", request: EditMessageRequest{Target: target, MessageID: "1", Embed: &Embed{Description: "d"}}, valid: true},
		{name: "edit without id", request: EditMessageRequest{Target: target, Text: "x"}},
		{name: "delete without conversation", request: DeleteMessageRequest{MessageID: "1"}},
		{name: "react without emoji", request: SetReactionRequest{Target: target, MessageID: "1", Action: ReactionActionAdd}},
		{name: "list without limit", request: ListMessagesRequest{Target: target}},
		{name: "bulk delete blank id", request: DeleteMessagesRequest{Target: target, MessageIDs: []string{"1", ""}}},
		{name: "clear reactions", request: ClearReactionsRequest{Target: target, MessageID: "1"}, valid: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.request.Validate()
			if testCase.valid && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if !testCase.valid && !errors.Is(err, ErrInvalidOutboundRequest) {
				t.Fatalf("Validate() error = %v, want ErrInvalidOutboundRequest", err)
			}
		})
	}
}

func TestOutboundTargetFromEvent(t *testing.T) {
	t.Parallel()

	target, err := OutboundTargetFromEvent(&Event{
		Kind:         EventKindCommandReceived,
		Source:       EventSource{Platform: PlatformTelegram, ID: "tg-main"},
		Conversation: Conversation{ID: "-100", Type: ConversationTypeChannel},
	})
	if err != nil {
		t.Fatalf("OutboundTargetFromEvent() error = %v", err)
	}
	want := SinkRef{Platform: PlatformTelegram, ID: "tg-main"}
	if target.Sink == nil || *target.Sink != want || target.Conversation.ID != "-100" {
		t.Fatalf("target = %+v sink %+v", target, target.Sink)
	}
	if _, err := OutboundTargetFromEvent(nil); err == nil {
		t.Fatal("OutboundTargetFromEvent(nil) should fail")
	}
}

func TestEmbedClone(t *testing.T) {
	t.Parallel()

	original := &Embed{Title: "t", Fields: []EmbedField{{Name: "a", Value: "1"}}}
	cloned := original.Clone()
	cloned.Fields[0].Value = "2"
	if original.Fields[0].Value != "1" {
		t.Fatal("clone shares fields with original")
	}
	if (*Embed)(nil).Clone() != nil {
		t.Fatal("nil clone = non-nil")
	}
}
