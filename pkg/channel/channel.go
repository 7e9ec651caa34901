package channel

import (
	"context"
	"strings"

	"tipbot/pkg/bus"
	"tipbot/pkg/command"
)

// Room is the conversation a message arrived in, as the parser sees it.
type Room = command.Room

// Handler processes one inbound channel message and returns an outbound reply.
type Handler func(context.Context, Room, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external chat transport (Matrix, Telegram, console) into the bot.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

const messagePreviewLimit = 240

// PreviewText returns a bounded log-safe preview of message text.
func PreviewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// ReplyText picks what to send back for a handled message: the content, or
// the error text when there is no content.
func ReplyText(outbound bus.OutboundMessage) string {
	if text := strings.TrimSpace(outbound.Content); text != "" {
		return text
	}

	return strings.TrimSpace(outbound.Error)
}
