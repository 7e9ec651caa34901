package bus

// InboundMessage is one chat message delivered by a channel adapter.
type InboundMessage struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	EventID  string `json:"event_id,omitempty"`
	Content  string `json:"content"`
	// FormattedContent is the HTML rendering of Content when the transport has one.
	FormattedContent string `json:"formatted_content,omitempty"`
	// ReplyToEventID identifies the message this one replies to, if any.
	ReplyToEventID string `json:"reply_to_event_id,omitempty"`
	// AddressedToBot is set when the message starts with the bot's own name.
	AddressedToBot bool              `json:"addressed_to_bot,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is the reply a channel adapter sends back for one inbound message.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Content  string            `json:"content"`
	Image    []byte            `json:"-"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Empty reports whether there is nothing to send.
func (m OutboundMessage) Empty() bool {
	return m.Content == "" && len(m.Image) == 0
}
