package sandwich

import (
	"context"
	"fmt"
	"strings"
)

// ServiceSinkDispatcher is the service name of the outbound SinkDispatcher.
const ServiceSinkDispatcher = "sandwich.sink_dispatcher"

// SinkDispatcher performs outbound operations on a chat platform.
//
// When the message an operation targets no longer exists, implementations
// return an *OutboundError with Kind OutboundErrorKindNotFound.
type SinkDispatcher interface {
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	EditMessage(ctx context.Context, request EditMessageRequest) error
	DeleteMessage(ctx context.Context, request DeleteMessageRequest) error
	SetReaction(ctx context.Context, request SetReactionRequest) error
}

// HistoryDispatcher is the optional extension for sinks that can read
// recent history. Callers type-assert a SinkDispatcher to reach it.
type HistoryDispatcher interface {
	// ListMessages returns at most Limit messages, newest first.
	ListMessages(ctx context.Context, request ListMessagesRequest) ([]HistoryMessage, error)
	DeleteMessages(ctx context.Context, request DeleteMessagesRequest) error
	ClearReactions(ctx context.Context, request ClearReactionsRequest) error
}

// SinkRef names one configured driver instance. Either field may be empty
// but not both.
type SinkRef struct {
	Platform Platform
	ID       string
}

// OutboundTarget is the conversation an operation applies to. A nil Sink
// lets the dispatcher choose when only one sink could match.
type OutboundTarget struct {
	Conversation Conversation
	Sink         *SinkRef
}

func (t OutboundTarget) Validate() error {
	switch {
	case t.Conversation.ID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	case t.Sink != nil && *t.Sink == SinkRef{}:
		return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent addresses the conversation and sink event came from.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}

	target := OutboundTarget{Conversation: event.Conversation}
	if source := event.Source; source != (EventSource{}) {
		target.Sink = &SinkRef{Platform: source.Platform, ID: source.ID}
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("target for %s event: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage is a message the dispatcher posted.
type OutboundMessage struct {
	ID     string
	Target OutboundTarget
}

// Embed is a rich block shown with a message. Platforms without embeds
// render it as text.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	ImageURL    string
	Footer      string
	Fields      []EmbedField
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

func (e *Embed) Clone() *Embed {
	if e == nil {
		return nil
	}
	cloned := *e
	cloned.Fields = append([]EmbedField(nil), e.Fields...)

	return &cloned
}

// IsEmpty reports whether rendering e would show nothing. A nil embed is empty.
func (e *Embed) IsEmpty() bool {
	if e == nil {
		return true
	}
	visible := strings.TrimSpace(e.Title + e.Description)

	return visible == "" && e.URL == "" && e.ImageURL == "" && e.Footer == "" && len(e.Fields) == 0
}

// Attachment is a file uploaded along with a message.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type SendMessageRequest struct {
	Target           OutboundTarget
	Text             string
	Embed            *Embed
	Attachments      []Attachment
	ReplyToMessageID string
}

func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if r.Text == "" && r.Embed.IsEmpty() && len(r.Attachments) == 0 {
		return fmt.Errorf("send message: %w: nothing to send", ErrInvalidOutboundRequest)
	}
	for i := range r.Attachments {
		if r.Attachments[i].FileName == "" {
			return fmt.Errorf("send message: %w: attachment %d has no file name", ErrInvalidOutboundRequest, i)
		}
	}

	return nil
}

// EditMessageRequest replaces the text and the embed of a posted message.
// A nil Embed removes the one currently shown.
type EditMessageRequest struct {
	Target    OutboundTarget
	MessageID string
	Text      string
	Embed     *Embed
}

func (r EditMessageRequest) Validate() error {
	if err := validateMessageRef("edit message", r.Target, r.MessageID); err != nil {
		return err
	}
	if r.Text == "" && r.Embed.IsEmpty() {
		return fmt.Errorf("edit message: %w: nothing to show", ErrInvalidOutboundRequest)
	}

	return nil
}

type DeleteMessageRequest struct {
	Target    OutboundTarget
	MessageID string
}

func (r DeleteMessageRequest) Validate() error {
	return validateMessageRef("delete message", r.Target, r.MessageID)
}

type ReactionAction string

const (
	ReactionActionAdd    ReactionAction = "add"
	ReactionActionRemove ReactionAction = "remove"
)

type SetReactionRequest struct {
	Target    OutboundTarget
	MessageID string
	Emoji     string
	Action    ReactionAction
}

func (r SetReactionRequest) Validate() error {
	if err := validateMessageRef("set reaction", r.Target, r.MessageID); err != nil {
		return err
	}
	switch {
	case r.Action != ReactionActionAdd && r.Action != ReactionActionRemove:
		return fmt.Errorf("set reaction: %w: action %q", ErrInvalidOutboundRequest, r.Action)
	case r.Emoji == "":
		return fmt.Errorf("set reaction: %w: missing emoji", ErrInvalidOutboundRequest)
	}

	return nil
}

// HistoryMessage is one entry of ListMessages.
type HistoryMessage struct {
	ID     string
	Author Actor
	// FromSelf is set on messages the bot posted.
	FromSelf     bool
	HasReactions bool
}

type ListMessagesRequest struct {
	Target OutboundTarget
	Limit  int
}

func (r ListMessagesRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("list messages: %w: limit %d", ErrInvalidOutboundRequest, r.Limit)
	}

	return nil
}

type DeleteMessagesRequest struct {
	Target     OutboundTarget
	MessageIDs []string
}

func (r DeleteMessagesRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	for i, id := range r.MessageIDs {
		if id == "" {
			return fmt.Errorf("delete messages: %w: id %d is empty", ErrInvalidOutboundRequest, i)
		}
	}

	return nil
}

type ClearReactionsRequest struct {
	Target    OutboundTarget
	MessageID string
}

func (r ClearReactionsRequest) Validate() error {
	return validateMessageRef("clear reactions", r.Target, r.MessageID)
}

func validateMessageRef(op string, target OutboundTarget, messageID string) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if messageID == "" {
		return fmt.Errorf("%s: %w: missing message id", op, ErrInvalidOutboundRequest)
	}

	return nil
}
