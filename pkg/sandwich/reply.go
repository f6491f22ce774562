package sandwich

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// ServiceReplyCache is the canonical service registry key for the reply cache.
const ServiceReplyCache = "sandwich.reply_cache"

const (
	// MaxReplyTextLength is the longest reply text sent before truncation.
	MaxReplyTextLength = 2000
	// TruncationNotice is sent as a separate untracked message after truncation.
	TruncationNotice = "(Message truncated to 2k characters)"
	// TruncationNoticeLifetime is how long the truncation notice stays visible.
	TruncationNoticeLifetime = 3500 * time.Millisecond
)

// ReplyCache tracks which bot message answers which triggering message so a
// re-run command edits its previous answer instead of posting a new one.
//
// Operations on one RequestID are serialized; distinct ids run concurrently.
type ReplyCache interface {
	// Reply creates, edits or deletes the tracked answer for request.RequestID.
	//
	// It returns nil when the reply was cleared. Transport failures are returned
	// unchanged in meaning and leave the tracked state as it was.
	Reply(ctx context.Context, request ReplyRequest) (*OutboundMessage, error)
	// Discard removes the tracked answer for requestID and deletes it best effort.
	Discard(ctx context.Context, requestID string)
	// Lookup returns a copy of the record tracked for requestID.
	Lookup(requestID string) (ReplyRecord, bool)
}

// ReplyRequest describes one reply to a triggering message.
type ReplyRequest struct {
	// RequestID identifies the triggering message; see NewRequestID.
	RequestID string
	// Target is where a new reply is sent.
	Target OutboundTarget
	// Text is the reply body. Empty text on an edit keeps the previous body.
	Text string
	// Embed is the rich block. On an edit it replaces the previous one exactly.
	Embed *Embed
	// Attachments are uploaded only when a new message is sent.
	Attachments []Attachment
	// ReplyToMessageID optionally links a new reply to the triggering message.
	ReplyToMessageID string
	// ForceNew sends an untracked message that is never edited or cleared.
	ForceNew bool
	// DeleteAfter schedules removal of a ForceNew message; zero keeps it.
	DeleteAfter time.Duration
}

// IsEmpty reports whether the request carries no text and no renderable
// embed, which means "clear the previous reply" for a tracked request.
func (r ReplyRequest) IsEmpty() bool {
	return r.Text == "" && r.Embed.IsEmpty()
}

// Validate checks the request envelope before any transport call.
func (r ReplyRequest) Validate() error {
	if !r.ForceNew && r.RequestID == "" {
		return fmt.Errorf("%w: missing request id", ErrInvalidReplyRequest)
	}
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReplyRequest, err)
	}
	if r.DeleteAfter < 0 {
		return fmt.Errorf("%w: delete_after must be >= 0", ErrInvalidReplyRequest)
	}
	if r.DeleteAfter > 0 && !r.ForceNew {
		return fmt.Errorf("%w: delete_after requires force_new", ErrInvalidReplyRequest)
	}

	return nil
}

// ReplyRecord is the tracked state of one visible bot reply.
type ReplyRecord struct {
	// RequestID identifies the triggering message.
	RequestID string
	// Message is the handle used to edit or delete the reply.
	Message OutboundMessage
	// Text is the body last rendered.
	Text string
	// Embed is the rich block last rendered.
	Embed *Embed
}

// ReplyTo builds a tracked ReplyRequest answering the message an event is about.
func ReplyTo(event *Event, text string) (ReplyRequest, error) {
	requestID, err := RequestIDFromEvent(event)
	if err != nil {
		return ReplyRequest{}, fmt.Errorf("reply to event: %w", err)
	}
	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		return ReplyRequest{}, fmt.Errorf("reply to event: %w", err)
	}

	return ReplyRequest{
		RequestID:        requestID,
		Target:           target,
		Text:             text,
		ReplyToMessageID: event.SubjectMessageID(),
	}, nil
}

// SendReply sends request through cache, truncating long text.
//
// Text longer than MaxReplyTextLength is cut and an untracked TruncationNotice
// is posted that removes itself after TruncationNoticeLifetime.
func SendReply(ctx context.Context, cache ReplyCache, request ReplyRequest) (*OutboundMessage, error) {
	if cache == nil {
		return nil, fmt.Errorf("send reply: nil reply cache")
	}

	truncated := false
	if utf8.RuneCountInString(request.Text) > MaxReplyTextLength {
		request.Text = truncateRunes(request.Text, MaxReplyTextLength)
		truncated = true
	}

	message, err := cache.Reply(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("send reply %s: %w", request.RequestID, err)
	}
	if !truncated {
		return message, nil
	}

	if _, err := cache.Reply(ctx, ReplyRequest{
		Target:      request.Target,
		Text:        TruncationNotice,
		ForceNew:    true,
		DeleteAfter: TruncationNoticeLifetime,
	}); err != nil {
		return message, fmt.Errorf("send reply %s truncation notice: %w", request.RequestID, err)
	}

	return message, nil
}

func truncateRunes(text string, limit int) string {
	count := 0
	for index := range text {
		if count == limit {
			return text[:index]
		}
		count++
	}

	return text
}
