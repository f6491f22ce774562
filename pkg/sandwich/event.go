package sandwich

import (
	"fmt"
	"strings"
	"time"
)

// EventKind selects which payload of an Event is set.
type EventKind string

const (
	EventKindMessageCreated   EventKind = "message.created"
	EventKindMessageEdited    EventKind = "message.edited"
	EventKindMessageRetracted EventKind = "message.retracted"
	// EventKindCommandReceived is never published by drivers. The kernel
	// derives it from created or edited messages that name a registered
	// command.
	EventKindCommandReceived EventKind = "command.received"
)

type Platform string

const (
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
)

type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// EventSource is the driver instance an event came from. ID is the name
// the driver was configured under.
type EventSource struct {
	Platform Platform
	ID       string
}

// Event is what drivers publish and modules receive.
//
// Exactly one of Message and Mutation is set for platform events, chosen
// by Kind. Command events carry both Message and Command.
type Event struct {
	ID           string
	Kind         EventKind
	OccurredAt   time.Time
	Source       EventSource
	Conversation Conversation
	Actor        Actor
	Message      *Message
	Mutation     *Mutation
	Command      *CommandInvocation
	Metadata     map[string]string
}

// Conversation is a chat, channel or direct-message thread. Title is best
// effort.
type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

type Message struct {
	ID string
	// ReplyToID is set when the message replies to another one.
	ReplyToID string
	Text      string
	Mentions  []Actor
	Media     []MediaAttachment
}

// MediaAttachment describes a file attached to a message. Fields the
// platform does not report stay empty.
type MediaAttachment struct {
	ID        string
	MIMEType  string
	FileName  string
	SizeBytes int64
	URI       string
}

type MutationType string

const (
	MutationTypeEdit       MutationType = "edit"
	MutationTypeRetraction MutationType = "retraction"
)

// Mutation describes a change to an earlier message. After is required for
// edits; Before is only set when the platform still had the old content.
type Mutation struct {
	Type            MutationType
	TargetMessageID string
	Before          *MessageSnapshot
	After           *MessageSnapshot
}

type MessageSnapshot struct {
	Text     string
	Mentions []Actor
	Media    []MediaAttachment
}

// Validate checks the envelope and that the payload matches Kind.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}

	var missing string
	switch {
	case e.ID == "":
		missing = "id"
	case e.Kind == "":
		missing = "kind"
	case e.OccurredAt.IsZero():
		missing = "occurred_at"
	case e.Conversation.ID == "":
		missing = "conversation id"
	}
	if missing != "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidEvent, missing)
	}

	if err := e.checkPayload(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEvent, e.Kind, err)
	}

	return nil
}

func (e *Event) checkPayload() error {
	var wantMutation MutationType
	switch e.Kind {
	case EventKindMessageCreated:
		if e.Message == nil {
			return fmt.Errorf("no message")
		}
	case EventKindCommandReceived:
		if e.Message == nil {
			return fmt.Errorf("no message")
		}
		return e.Command.Validate()
	case EventKindMessageEdited:
		wantMutation = MutationTypeEdit
	case EventKindMessageRetracted:
		wantMutation = MutationTypeRetraction
	default:
		return fmt.Errorf("unsupported kind")
	}

	if wantMutation != "" {
		if e.Mutation == nil || e.Mutation.Type != wantMutation {
			return fmt.Errorf("no %s mutation", wantMutation)
		}
		if wantMutation == MutationTypeEdit && e.Mutation.After == nil {
			return fmt.Errorf("edit without after snapshot")
		}
	}
	if e.Mutation != nil && e.Mutation.TargetMessageID == "" {
		return fmt.Errorf("mutation without target message id")
	}

	return nil
}

// SubjectMessageID is the message the event is about: the message itself
// for created and command events, the changed message for edits and
// retractions.
func (e *Event) SubjectMessageID() string {
	switch {
	case e == nil:
		return ""
	case e.Message != nil && e.Message.ID != "":
		return e.Message.ID
	case e.Mutation != nil:
		return e.Mutation.TargetMessageID
	}

	return ""
}

// NewRequestID builds the reply cache key "platform:conversation:message".
// Message IDs repeat across conversations on most platforms.
func NewRequestID(platform Platform, conversationID string, messageID string) string {
	return strings.Join([]string{string(platform), conversationID, messageID}, ":")
}

// RequestIDFromEvent returns the reply cache key of event's subject message.
func RequestIDFromEvent(event *Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("%w: nil event", ErrInvalidReplyRequest)
	}

	messageID := event.SubjectMessageID()
	switch {
	case messageID == "":
		return "", fmt.Errorf("%w: %s event has no subject message", ErrInvalidReplyRequest, event.Kind)
	case event.Conversation.ID == "":
		return "", fmt.Errorf("%w: %s event has no conversation", ErrInvalidReplyRequest, event.Kind)
	}

	return NewRequestID(event.Source.Platform, event.Conversation.ID, messageID), nil
}
