package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"tipbot/pkg/bus"
	"tipbot/pkg/channel"
	"tipbot/pkg/config"
	"tipbot/pkg/logger"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	channelName           = "telegram"
	identityServer        = "telegram.org"
	typingRefreshInterval = 4 * time.Second
)

// Adapter bridges Telegram updates into bot inbound/outbound messages.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       logger.Component(log, "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and handles every message in its own goroutine.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot identity: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "bot", me.Username)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, room, ok := a.toInbound(update, me.Username)
			if !ok {
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				a.handle(ctx, bot, handler, room, inbound)
			}()
		}
	}
}

func (a *Adapter) handle(ctx context.Context, bot *telego.Bot, handler channel.Handler, room *chatRoom, inbound bus.InboundMessage) {
	a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "content", channel.PreviewText(inbound.Content))

	stopTyping := a.startTypingIndicator(ctx, bot, room.chatID)
	outbound, err := handler(ctx, room, inbound)
	stopTyping()
	if err != nil {
		a.log.Error("Failed to process inbound message", "error", err)
		if outbound.Empty() && outbound.Error == "" {
			return
		}
	}

	responseText := channel.ReplyText(outbound)
	if responseText != "" {
		a.log.Info("Sending message", "chat_id", inbound.ChatID, "content", channel.PreviewText(responseText))

		params := tu.Message(tu.ID(room.chatID), responseText)
		if messageID, err := strconv.Atoi(inbound.EventID); err == nil {
			params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: messageID})
		}
		if _, err := bot.SendMessage(ctx, params); err != nil {
			a.log.Error("Failed to send telegram message", "error", err)
		}
	}

	if len(outbound.Image) > 0 {
		photo := tu.Photo(tu.ID(room.chatID), tu.File(tu.NameReader(bytes.NewReader(outbound.Image), "invoice.png")))
		if _, err := bot.SendPhoto(ctx, photo); err != nil {
			a.log.Error("Failed to send telegram photo", "error", err)
		}
	}
}

// toInbound converts a text message update. ok is false for updates the bot ignores.
func (a *Adapter) toInbound(update telego.Update, botUsername string) (bus.InboundMessage, *chatRoom, bool) {
	message := update.Message
	if message == nil {
		return bus.InboundMessage{}, nil, false
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return bus.InboundMessage{}, nil, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return bus.InboundMessage{}, nil, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return bus.InboundMessage{}, nil, false
	}

	room := &chatRoom{chatID: message.Chat.ID}
	inbound := bus.InboundMessage{
		Channel:  channelName,
		SenderID: identityFor(message.From.ID),
		ChatID:   strconv.FormatInt(message.Chat.ID, 10),
		EventID:  strconv.Itoa(message.MessageID),
		Content:  content,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}

	if reply := message.ReplyToMessage; reply != nil && reply.From != nil {
		inbound.ReplyToEventID = strconv.Itoa(reply.MessageID)
		room.replyEventID = inbound.ReplyToEventID
		room.replySender = identityFor(reply.From.ID)
	}

	if botUsername != "" && strings.HasPrefix(strings.ToLower(content), "@"+strings.ToLower(botUsername)) {
		inbound.AddressedToBot = true
	}

	return inbound, room, true
}

// identityFor maps a Telegram user to a chat identity in the same
// "@name:server" shape Matrix uses, so wallets key on one format.
func identityFor(userID int64) string {
	return "@" + strconv.FormatInt(userID, 10) + ":" + identityServer
}

// chatRoom exposes what Telegram tells us about one message's chat. The Bot
// API has no member listing, so recipients must be fully qualified or
// reached by replying.
type chatRoom struct {
	chatID       int64
	replyEventID string
	replySender  string
}

func (r *chatRoom) Members(context.Context) ([]string, error) {
	return nil, nil
}

func (r *chatRoom) EventSender(_ context.Context, eventID string) (string, error) {
	if eventID == "" || eventID != r.replyEventID {
		return "", fmt.Errorf("message %s is not known", eventID)
	}

	return r.replySender, nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot *telego.Bot, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
