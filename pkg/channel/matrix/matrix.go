// Package matrix connects the bot to a Matrix homeserver as a regular user:
// it syncs, answers room messages and joins rooms it is invited to.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"tipbot/pkg/bus"
	"tipbot/pkg/channel"
	"tipbot/pkg/config"
	"tipbot/pkg/identity"
	"tipbot/pkg/join"
	"tipbot/pkg/logger"
	"tipbot/pkg/txn"
)

const (
	channelName       = "matrix"
	deviceDisplayName = "tipbot"
	imageMimeType     = "image/png"
	imageFileName     = "invoice.png"
)

// Options wires the adapter to the rest of the bot.
type Options struct {
	// Joiner retries joins for invites; nil ignores invites.
	Joiner *join.Supervisor
	// WelcomeText is posted once after joining a room.
	WelcomeText string
	// Seen drops events that were already handled, e.g. after a sync retry.
	Seen *txn.Cache
}

// Adapter is the Matrix channel.
type Adapter struct {
	cfg  config.MatrixConfig
	opts Options
	log  *slog.Logger
}

func NewAdapter(cfg config.MatrixConfig, opts Options, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Homeserver) == "" {
		return nil, errors.New("channels.matrix.homeserver is required")
	}
	if _, ok := identity.ParseUserID(cfg.UserID); !ok {
		return nil, fmt.Errorf("channels.matrix.user_id is not a valid user id: %q", cfg.UserID)
	}
	if strings.TrimSpace(cfg.Password) == "" && strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("channels.matrix.password or channels.matrix.access_token is required")
	}
	if opts.Seen == nil {
		opts.Seen = txn.NewCache(txn.DefaultCapacity)
	}

	return &Adapter{
		cfg:  cfg,
		opts: opts,
		log:  logger.Component(log, "channel.matrix"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run logs in, then syncs until ctx is cancelled. Every accepted event is
// handled in its own goroutine.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	client, err := a.connect(ctx)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	var wg sync.WaitGroup
	defer wg.Wait()

	syncer, ok := client.Syncer.(mautrix.ExtensibleSyncer)
	if !ok {
		return errors.New("matrix client syncer does not accept event handlers")
	}

	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		inbound, ok := a.toInbound(evt, client.UserID, startedAt)
		if !ok {
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.handleMessage(ctx, client, handler, evt, inbound)
		}()
	})

	syncer.OnEventType(event.StateMember, func(_ context.Context, evt *event.Event) {
		if !isInviteFor(evt, client.UserID) || a.opts.Joiner == nil {
			return
		}

		a.log.Info("Invited to room", "room_id", evt.RoomID, "inviter", evt.Sender)
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.opts.Joiner.Run(ctx, evt.RoomID.String(), &invite{client: client, roomID: evt.RoomID, welcome: a.opts.WelcomeText})
		}()
	})

	a.log.Info("Matrix channel started", "user_id", client.UserID)
	if err := client.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("matrix sync: %w", err)
	}

	return nil
}

func (a *Adapter) connect(ctx context.Context) (*mautrix.Client, error) {
	userID := id.UserID(strings.TrimSpace(a.cfg.UserID))

	client, err := mautrix.NewClient(strings.TrimSpace(a.cfg.Homeserver), userID, strings.TrimSpace(a.cfg.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}

	if client.AccessToken != "" {
		return client, nil
	}

	_, err = client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: identity.Localpart(userID.String()),
		},
		Password:                 a.cfg.Password,
		InitialDeviceDisplayName: deviceDisplayName,
		StoreCredentials:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("matrix login: %w", err)
	}

	return client, nil
}

// toInbound converts a room message event. ok is false for events the bot
// skips: its own messages, events from before it started, non-text
// messages and redeliveries.
func (a *Adapter) toInbound(evt *event.Event, self id.UserID, startedAt time.Time) (bus.InboundMessage, bool) {
	if evt == nil || evt.Sender == self {
		return bus.InboundMessage{}, false
	}
	if evt.Timestamp < startedAt.UnixMilli() {
		a.log.Debug("Ignoring event from before startup", "event_id", evt.ID)
		return bus.InboundMessage{}, false
	}

	content := evt.Content.AsMessage()
	if content == nil || strings.TrimSpace(content.Body) == "" {
		return bus.InboundMessage{}, false
	}
	if content.MsgType != event.MsgText && content.MsgType != event.MsgNotice {
		return bus.InboundMessage{}, false
	}

	if !a.opts.Seen.MarkProcessed(evt.ID.String()) {
		a.log.Debug("Ignoring duplicate event", "event_id", evt.ID)
		return bus.InboundMessage{}, false
	}

	inbound := bus.InboundMessage{
		Channel:  channelName,
		SenderID: evt.Sender.String(),
		ChatID:   evt.RoomID.String(),
		EventID:  evt.ID.String(),
		Content:  content.Body,
	}
	if content.Format == event.FormatHTML {
		inbound.FormattedContent = content.FormattedBody
	}
	if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
		inbound.ReplyToEventID = content.RelatesTo.InReplyTo.EventID.String()
	}

	botName := strings.ToLower(identity.Localpart(self.String()))
	if botName != "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(content.Body)), botName) {
		inbound.AddressedToBot = true
	}

	return inbound, true
}

func (a *Adapter) handleMessage(ctx context.Context, client *mautrix.Client, handler channel.Handler, evt *event.Event, inbound bus.InboundMessage) {
	a.log.Info("Received message", "room_id", inbound.ChatID, "sender", inbound.SenderID, "content", channel.PreviewText(inbound.Content))

	outbound, err := handler(ctx, &room{client: client, roomID: evt.RoomID}, inbound)
	if err != nil {
		a.log.Error("Failed to process inbound message", "event_id", evt.ID, "error", err)
	}

	if text := channel.ReplyText(outbound); text != "" {
		content := &event.MessageEventContent{
			MsgType:   event.MsgText,
			Body:      text,
			RelatesTo: &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: evt.ID}},
		}
		if _, err := client.SendMessageEvent(ctx, evt.RoomID, event.EventMessage, content); err != nil {
			a.log.Warn("Could not send reply", "room_id", evt.RoomID, "error", err)
		}
	}

	if len(outbound.Image) > 0 {
		if err := sendImage(ctx, client, evt.RoomID, outbound.Image); err != nil {
			a.log.Warn("Could not send image", "room_id", evt.RoomID, "error", err)
		}
	}
}

func sendImage(ctx context.Context, client *mautrix.Client, roomID id.RoomID, data []byte) error {
	uploaded, err := client.UploadBytes(ctx, data, imageMimeType)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}

	content := &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    imageFileName,
		URL:     uploaded.ContentURI.CUString(),
		Info:    &event.FileInfo{MimeType: imageMimeType, Size: len(data)},
	}
	if _, err := client.SendMessageEvent(ctx, roomID, event.EventMessage, content); err != nil {
		return fmt.Errorf("send image: %w", err)
	}

	return nil
}

func isInviteFor(evt *event.Event, self id.UserID) bool {
	if evt == nil || evt.GetStateKey() != self.String() {
		return false
	}

	member := evt.Content.AsMember()
	return member != nil && member.Membership == event.MembershipInvite
}
