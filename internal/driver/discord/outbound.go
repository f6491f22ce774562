package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"sandwich/pkg/sandwich"

	"github.com/bwmarrin/discordgo"
)

const (
	// Discord caps both bulk deletes and history pages at 100 messages.
	bulkDeleteLimit  = 100
	historyPageLimit = 100
)

// restAPI is the REST half of *discordgo.Session.
type restAPI interface {
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID string, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
	ChannelMessages(
		channelID string,
		limit int,
		beforeID string,
		afterID string,
		aroundID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Message, error)
	MessageReactionAdd(channelID string, messageID string, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(
		channelID string,
		messageID string,
		emojiID string,
		userID string,
		options ...discordgo.RequestOption,
	) error
	MessageReactionsRemoveAll(channelID string, messageID string, options ...discordgo.RequestOption) error
}

// OutboundOption configures a SinkDispatcher.
type OutboundOption func(*SinkDispatcher)

// WithOutboundTimeout bounds each REST call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(d *SinkDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithOutboundLogger logs every successful call at debug level.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(d *SinkDispatcher) {
		d.logger = logger
	}
}

// WithSinkRef sets the sink identity reported in errors.
func WithSinkRef(ref sandwich.SinkRef) OutboundOption {
	return func(d *SinkDispatcher) {
		ref.Platform = DriverPlatform
		d.sink = ref
	}
}

// WithSelfID supplies the bot user ID so history can mark its own messages.
func WithSelfID(selfID func() string) OutboundOption {
	return func(d *SinkDispatcher) {
		if selfID != nil {
			d.selfID = selfID
		}
	}
}

// SinkDispatcher performs outbound operations over the Discord REST API.
type SinkDispatcher struct {
	rest    restAPI
	timeout time.Duration
	logger  *slog.Logger
	sink    sandwich.SinkRef
	selfID  func() string
}

// NewOutboundDispatcher creates a dispatcher over rest.
func NewOutboundDispatcher(rest restAPI, options ...OutboundOption) (*SinkDispatcher, error) {
	if rest == nil {
		return nil, fmt.Errorf("new discord outbound dispatcher: nil rest client")
	}

	d := &SinkDispatcher{
		rest:    rest,
		timeout: 5 * time.Second,
		logger:  slog.New(slog.DiscardHandler),
		sink:    sandwich.SinkRef{Platform: DriverPlatform},
		selfID:  func() string { return "" },
	}
	for _, option := range options {
		option(d)
	}

	return d, nil
}

// SendMessage posts text, an embed and files, optionally as a reply.
// Replies never ping the replied-to author.
func (d *SinkDispatcher) SendMessage(
	ctx context.Context,
	request sandwich.SendMessageRequest,
) (*sandwich.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	payload := &discordgo.MessageSend{
		Content:         request.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
		Embeds:          embedList(request.Embed),
	}
	for _, attachment := range request.Attachments {
		payload.Files = append(payload.Files, &discordgo.File{
			Name:        attachment.FileName,
			ContentType: attachment.ContentType,
			Reader:      bytes.NewReader(attachment.Data),
		})
	}

	var sent *discordgo.Message
	err := d.call(ctx, sandwich.OutboundOperationSendMessage, request.Target,
		func(channelID string, option discordgo.RequestOption) error {
			if request.ReplyToMessageID != "" {
				payload.Reference = &discordgo.MessageReference{MessageID: request.ReplyToMessageID, ChannelID: channelID}
			}
			var err error
			sent, err = d.rest.ChannelMessageSendComplex(channelID, payload, option)

			return err
		})
	if err != nil {
		return nil, err
	}
	if sent == nil || sent.ID == "" {
		return nil, fmt.Errorf("send message to %s: empty response", request.Target.Conversation.ID)
	}

	return &sandwich.OutboundMessage{ID: sent.ID, Target: request.Target}, nil
}

// EditMessage sets the content and embed of a message exactly; a nil
// embed clears the one shown.
func (d *SinkDispatcher) EditMessage(ctx context.Context, request sandwich.EditMessageRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	content := request.Text
	embeds := embedList(request.Embed)
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}

	return d.call(ctx, sandwich.OutboundOperationEditMessage, request.Target,
		func(channelID string, option discordgo.RequestOption) error {
			_, err := d.rest.ChannelMessageEditComplex(&discordgo.MessageEdit{
				ID:      request.MessageID,
				Channel: channelID,
				Content: &content,
				Embeds:  &embeds,
			}, option)

			return err
		}, "message_id", request.MessageID)
}

// DeleteMessage deletes one message.
func (d *SinkDispatcher) DeleteMessage(ctx context.Context, request sandwich.DeleteMessageRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return d.call(ctx, sandwich.OutboundOperationDeleteMessage, request.Target,
		func(channelID string, option discordgo.RequestOption) error {
			return d.rest.ChannelMessageDelete(channelID, request.MessageID, option)
		}, "message_id", request.MessageID)
}

// SetReaction adds or removes the bot's own reaction.
func (d *SinkDispatcher) SetReaction(ctx context.Context, request sandwich.SetReactionRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}

	return d.call(ctx, sandwich.OutboundOperationSetReaction, request.Target,
		func(channelID string, option discordgo.RequestOption) error {
			if request.Action == sandwich.ReactionActionAdd {
				return d.rest.MessageReactionAdd(channelID, request.MessageID, request.Emoji, option)
			}

			return d.rest.MessageReactionRemove(channelID, request.MessageID, request.Emoji, "@me", option)
		}, "message_id", request.MessageID, "action", request.Action)
}

// ListMessages pages backwards through history, newest first, until
// Limit messages are read or the channel runs out.
func (d *SinkDispatcher) ListMessages(
	ctx context.Context,
	request sandwich.ListMessagesRequest,
) ([]sandwich.HistoryMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	selfID := d.selfID()
	history := make([]sandwich.HistoryMessage, 0, request.Limit)
	before := ""
	for len(history) < request.Limit {
		size := min(request.Limit-len(history), historyPageLimit)

		var page []*discordgo.Message
		err := d.call(ctx, sandwich.OutboundOperationListMessages, request.Target,
			func(channelID string, option discordgo.RequestOption) error {
				var err error
				page, err = d.rest.ChannelMessages(channelID, size, before, "", "", option)

				return err
			})
		if err != nil {
			return nil, err
		}

		for _, message := range page {
			if message == nil {
				continue
			}
			author := mapUser(message.Author)
			history = append(history, sandwich.HistoryMessage{
				ID:           message.ID,
				Author:       author,
				FromSelf:     selfID != "" && author.ID == selfID,
				HasReactions: len(message.Reactions) > 0,
			})
		}
		if len(page) < size {
			break
		}
		before = page[len(page)-1].ID
	}

	return history, nil
}

// DeleteMessages deletes in batches of bulkDeleteLimit. A batch of one
// uses the single delete endpoint, which the bulk one rejects.
func (d *SinkDispatcher) DeleteMessages(ctx context.Context, request sandwich.DeleteMessagesRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	ids := request.MessageIDs
	for len(ids) > 0 {
		batch := ids[:min(bulkDeleteLimit, len(ids))]
		ids = ids[len(batch):]

		err := d.call(ctx, sandwich.OutboundOperationDeleteMessages, request.Target,
			func(channelID string, option discordgo.RequestOption) error {
				if len(batch) == 1 {
					return d.rest.ChannelMessageDelete(channelID, batch[0], option)
				}

				return d.rest.ChannelMessagesBulkDelete(channelID, batch, option)
			}, "count", len(batch))
		if err != nil {
			return err
		}
	}

	return nil
}

// ClearReactions removes every reaction from a message.
func (d *SinkDispatcher) ClearReactions(ctx context.Context, request sandwich.ClearReactionsRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("clear reactions: %w", err)
	}

	return d.call(ctx, sandwich.OutboundOperationClearReactions, request.Target,
		func(channelID string, option discordgo.RequestOption) error {
			return d.rest.MessageReactionsRemoveAll(channelID, request.MessageID, option)
		}, "message_id", request.MessageID)
}

// call runs one REST request against target's channel under the
// dispatcher timeout and classifies its failure.
func (d *SinkDispatcher) call(
	ctx context.Context,
	op sandwich.OutboundOperation,
	target sandwich.OutboundTarget,
	fn func(channelID string, option discordgo.RequestOption) error,
	attrs ...any,
) error {
	if sink := target.Sink; sink != nil && sink.Platform != "" && sink.Platform != DriverPlatform {
		return fmt.Errorf("%s: %w: platform %s", op, sandwich.ErrOutboundUnsupported, sink.Platform)
	}
	channelID := target.Conversation.ID

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := fn(channelID, discordgo.WithContext(callCtx)); err != nil {
		return fmt.Errorf("%s in %s: %w", op, channelID, classify(op, d.sink, err))
	}
	d.logger.DebugContext(ctx, "discord outbound call",
		append([]any{"operation", op, "sink_id", d.sink.ID, "channel_id", channelID}, attrs...)...)

	return nil
}

// embedList converts embed into the single-element list discordgo sends,
// or nil when embed is empty.
func embedList(embed *sandwich.Embed) []*discordgo.MessageEmbed {
	if embed.IsEmpty() {
		return nil
	}

	out := &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		URL:         embed.URL,
		Color:       embed.Color,
	}
	if embed.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: embed.ImageURL}
	}
	if embed.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: embed.Footer}
	}
	for _, field := range embed.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: field.Name, Value: field.Value, Inline: field.Inline})
	}

	return []*discordgo.MessageEmbed{out}
}
