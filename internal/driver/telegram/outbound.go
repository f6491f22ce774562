package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sandwich/pkg/sandwich"

	"github.com/gotd/td/tg"
)

// outgoingMessage is a SendMessageRequest rendered for Telegram.
type outgoingMessage struct {
	text       string
	replyTo    int
	attachment *sandwich.Attachment
}

// rpc is the part of the Telegram API the dispatcher uses.
type rpc interface {
	Send(ctx context.Context, peer tg.InputPeerClass, outgoing outgoingMessage) (int, error)
	Edit(ctx context.Context, peer tg.InputPeerClass, messageID int, text string) error
	Delete(ctx context.Context, peer tg.InputPeerClass, messageIDs []int) error
	React(ctx context.Context, peer tg.InputPeerClass, messageID int, reactions []tg.ReactionClass) error
	History(ctx context.Context, peer tg.InputPeerClass, limit int) ([]sandwich.HistoryMessage, error)
}

// OutboundOption configures a SinkDispatcher.
type OutboundOption func(*SinkDispatcher)

// WithOutboundTimeout bounds each API call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(d *SinkDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(d *SinkDispatcher) {
		d.logger = logger
	}
}

// WithSinkRef sets the sink reported in *sandwich.OutboundError.
func WithSinkRef(ref sandwich.SinkRef) OutboundOption {
	return func(d *SinkDispatcher) {
		d.sink = ref
		d.sink.Platform = DriverPlatform
	}
}

// SinkDispatcher sends outbound operations through the account's session.
//
// Telegram has no embeds, so they are appended to the text. A message may
// carry at most one attachment, captioned with the text.
type SinkDispatcher struct {
	api     rpc
	peers   *PeerCache
	timeout time.Duration
	logger  *slog.Logger
	sink    sandwich.SinkRef
}

func newSinkDispatcher(api rpc, peers *PeerCache, options ...OutboundOption) *SinkDispatcher {
	d := &SinkDispatcher{
		api:     api,
		peers:   peers,
		timeout: 10 * time.Second,
		logger:  slog.Default(),
		sink:    sandwich.SinkRef{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(d)
	}

	return d
}

func (d *SinkDispatcher) SendMessage(
	ctx context.Context,
	request sandwich.SendMessageRequest,
) (*sandwich.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	if len(request.Attachments) > 1 {
		return nil, fmt.Errorf("send message: %w: %d attachments", sandwich.ErrOutboundUnsupported, len(request.Attachments))
	}

	outgoing := outgoingMessage{text: flatten(request.Text, request.Embed)}
	if request.ReplyToMessageID != "" {
		replyTo, err := messageID(request.ReplyToMessageID)
		if err != nil {
			return nil, fmt.Errorf("send message: reply to: %w", err)
		}
		outgoing.replyTo = replyTo
	}
	if len(request.Attachments) == 1 {
		outgoing.attachment = &request.Attachments[0]
	}

	var sent int
	err := d.call(ctx, sandwich.OutboundOperationSendMessage, request.Target, func(ctx context.Context, peer tg.InputPeerClass) error {
		var err error
		sent, err = d.api.Send(ctx, peer, outgoing)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.logger.DebugContext(ctx, "telegram message sent",
		"conversation", request.Target.Conversation.ID, "message_id", sent, "reply_to", request.ReplyToMessageID)

	return &sandwich.OutboundMessage{ID: strconv.Itoa(sent), Target: request.Target}, nil
}

func (d *SinkDispatcher) EditMessage(ctx context.Context, request sandwich.EditMessageRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	id, err := messageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	return d.call(ctx, sandwich.OutboundOperationEditMessage, request.Target, func(ctx context.Context, peer tg.InputPeerClass) error {
		return d.api.Edit(ctx, peer, id, flatten(request.Text, request.Embed))
	})
}

// DeleteMessage revokes the message for every participant.
func (d *SinkDispatcher) DeleteMessage(ctx context.Context, request sandwich.DeleteMessageRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	id, err := messageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return d.call(ctx, sandwich.OutboundOperationDeleteMessage, request.Target, func(ctx context.Context, peer tg.InputPeerClass) error {
		return d.api.Delete(ctx, peer, []int{id})
	})
}

// SetReaction replaces the account's reactions on a message. Removing
// sends an empty set, since an account holds one reaction per message.
func (d *SinkDispatcher) SetReaction(ctx context.Context, request sandwich.SetReactionRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	id, err := messageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}

	var reactions []tg.ReactionClass
	if request.Action == sandwich.ReactionActionAdd {
		reactions = append(reactions, &tg.ReactionEmoji{Emoticon: strings.TrimSpace(request.Emoji)})
	}

	return d.call(ctx, sandwich.OutboundOperationSetReaction, request.Target, func(ctx context.Context, peer tg.InputPeerClass) error {
		return d.api.React(ctx, peer, id, reactions)
	})
}

func (d *SinkDispatcher) ListMessages(
	ctx context.Context,
	request sandwich.ListMessagesRequest,
) ([]sandwich.HistoryMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	var history []sandwich.HistoryMessage
	err := d.call(ctx, sandwich.OutboundOperationListMessages, request.Target, func(ctx context.Context, peer tg.InputPeerClass) error {
		var err error
		history, err = d.api.History(ctx, peer, request.Limit)
		return err
	})

	return history, err
}

// DeleteMessages revokes all messages in one call.
func (d *SinkDispatcher) DeleteMessages(ctx context.Context, request sandwich.DeleteMessagesRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	if len(request.MessageIDs) == 0 {
		return nil
	}

	ids := make([]int, len(request.MessageIDs))
	for i, raw := range request.MessageIDs {
		id, err := messageID(raw)
		if err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		ids[i] = id
	}

	return d.call(ctx, sandwich.OutboundOperationDeleteMessages, request.Target, func(ctx context.Context, peer tg.InputPeerClass) error {
		return d.api.Delete(ctx, peer, ids)
	})
}

// ClearReactions is not possible: an account can only retract its own
// reaction.
func (d *SinkDispatcher) ClearReactions(_ context.Context, request sandwich.ClearReactionsRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}

	return fmt.Errorf("clear reactions: %w", sandwich.ErrOutboundUnsupported)
}

// call resolves target to a peer and runs fn under the request timeout.
// API errors come back classified as *sandwich.OutboundError.
func (d *SinkDispatcher) call(
	ctx context.Context,
	op sandwich.OutboundOperation,
	target sandwich.OutboundTarget,
	fn func(ctx context.Context, peer tg.InputPeerClass) error,
) error {
	if sink := target.Sink; sink != nil && sink.Platform != "" && sink.Platform != DriverPlatform {
		return fmt.Errorf("%s: %w: platform %s", op, sandwich.ErrOutboundUnsupported, sink.Platform)
	}
	peer, err := d.peers.Resolve(target.Conversation)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := fn(ctx, peer); err != nil {
		return fmt.Errorf("%s in %s: %w", op, target.Conversation.ID, classify(op, d.sink, err))
	}

	return nil
}

func messageID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: message id %q", sandwich.ErrInvalidOutboundRequest, raw)
	}

	return id, nil
}

// flatten renders embed as plain lines under text.
func flatten(text string, embed *sandwich.Embed) string {
	if embed.IsEmpty() {
		return text
	}

	var lines []string
	if text != "" {
		lines = append(lines, text, "")
	}
	add := func(line string) {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	add(embed.Title)
	add(embed.Description)
	for _, field := range embed.Fields {
		add(field.Name + ": " + field.Value)
	}
	add(embed.URL)
	add(embed.ImageURL)
	add(embed.Footer)

	return strings.Join(lines, "\n")
}
