package telegram

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sandwich/pkg/sandwich"

	"github.com/gotd/td/crypto"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// clientRPC implements rpc on a live gotd client.
type clientRPC struct {
	api      *tg.Client
	random   io.Reader
	sender   *message.Sender
	uploader *uploader.Uploader
}

func newClientRPC(client *gotdtelegram.Client) clientRPC {
	api := client.API()

	return clientRPC{
		api:      api,
		random:   crypto.DefaultRand(),
		sender:   message.NewSender(api),
		uploader: uploader.NewUploader(api),
	}
}

func (r clientRPC) Send(ctx context.Context, peer tg.InputPeerClass, outgoing outgoingMessage) (int, error) {
	randomID, err := crypto.RandInt64(r.random)
	if err != nil {
		return 0, fmt.Errorf("random id: %w", err)
	}
	var replyTo tg.InputReplyToClass
	if outgoing.replyTo > 0 {
		replyTo = &tg.InputReplyToMessage{ReplyToMsgID: outgoing.replyTo}
	}

	var updates tg.UpdatesClass
	if outgoing.attachment == nil {
		request := &tg.MessagesSendMessageRequest{Peer: peer, Message: outgoing.text, RandomID: randomID}
		if replyTo != nil {
			request.SetReplyTo(replyTo)
		}
		updates, err = r.api.MessagesSendMessage(ctx, request)
	} else {
		var media tg.InputMediaClass
		media, err = r.upload(ctx, *outgoing.attachment)
		if err != nil {
			return 0, err
		}
		request := &tg.MessagesSendMediaRequest{Peer: peer, Media: media, Message: outgoing.text, RandomID: randomID}
		if replyTo != nil {
			request.SetReplyTo(replyTo)
		}
		updates, err = r.api.MessagesSendMedia(ctx, request)
	}
	if err != nil {
		return 0, err
	}

	id, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("sent message id: %w", err)
	}

	return id, nil
}

// upload sends images as photos and everything else as documents.
func (r clientRPC) upload(ctx context.Context, attachment sandwich.Attachment) (tg.InputMediaClass, error) {
	file, err := r.uploader.FromBytes(ctx, attachment.FileName, attachment.Data)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", attachment.FileName, err)
	}
	if strings.HasPrefix(attachment.ContentType, "image/") {
		return &tg.InputMediaUploadedPhoto{File: file}, nil
	}

	return &tg.InputMediaUploadedDocument{
		File:       file,
		MimeType:   attachment.ContentType,
		Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: attachment.FileName}},
	}, nil
}

// Edit treats MESSAGE_NOT_MODIFIED as success.
func (r clientRPC) Edit(ctx context.Context, peer tg.InputPeerClass, messageID int, text string) error {
	request := &tg.MessagesEditMessageRequest{Peer: peer, ID: messageID}
	request.SetMessage(text)
	_, err := r.api.MessagesEditMessage(ctx, request)
	if err != nil && !tgerr.Is(err, "MESSAGE_NOT_MODIFIED") {
		return err
	}

	return nil
}

func (r clientRPC) Delete(ctx context.Context, peer tg.InputPeerClass, messageIDs []int) error {
	_, err := r.sender.To(peer).Revoke().Messages(ctx, messageIDs...)

	return err
}

func (r clientRPC) React(ctx context.Context, peer tg.InputPeerClass, messageID int, reactions []tg.ReactionClass) error {
	_, err := r.sender.To(peer).Reaction(ctx, messageID, reactions...)

	return err
}

func (r clientRPC) History(ctx context.Context, peer tg.InputPeerClass, limit int) ([]sandwich.HistoryMessage, error) {
	result, err := r.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: peer, Limit: limit})
	if err != nil {
		return nil, err
	}
	modified, ok := result.AsModified()
	if !ok {
		return nil, nil
	}

	return historyOf(modified.GetMessages(), newEntities(modified.GetUsers(), modified.GetChats())), nil
}

// historyOf keeps regular messages in the order Telegram returned them,
// newest first. Service messages are skipped.
func historyOf(messages []tg.MessageClass, ents entities) []sandwich.HistoryMessage {
	history := make([]sandwich.HistoryMessage, 0, len(messages))
	for _, raw := range messages {
		msg, ok := raw.(*tg.Message)
		if !ok {
			continue
		}
		from, ok := msg.GetFromID()
		if !ok {
			from = msg.PeerID
		}
		entry := sandwich.HistoryMessage{
			ID:       strconv.Itoa(msg.ID),
			Author:   ents.author(from),
			FromSelf: msg.Out,
		}
		if reactions, ok := msg.GetReactions(); ok {
			entry.HasReactions = len(reactions.Results) > 0
		}
		history = append(history, entry)
	}

	return history
}
