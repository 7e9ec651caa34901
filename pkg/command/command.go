// Package command holds the typed chat commands and the parser that
// recognises them in message text.
package command

import (
	"math"

	"github.com/shopspring/decimal"

	"tipbot/pkg/identity"
)

// MaxSats is the largest amount a command may carry; the wallet service
// counts in millisatoshi, and larger amounts would not fit in a uint64.
const MaxSats = math.MaxUint64 / 1000

// MaxFiat bounds !fiat-to-sats input.
var MaxFiat = decimal.New(1, 12)

const (
	maxFiatLength   = 32
	maxFiatExponent = 12
	maxFiatDecimals = 8
)

// Command is one recognised chat command. The set of implementations is
// closed; switch on the concrete type.
type Command interface {
	Name() string
	isCommand()
}

// Memo fields are empty when the user gave none.
type (
	Tip struct {
		Sender      string
		Amount      uint64
		Memo        string
		ReplyTarget string
	}

	Send struct {
		Sender    string
		Amount    uint64
		Recipient identity.Target
		Memo      string
	}

	Invoice struct {
		Sender string
		Amount uint64
		Memo   string
	}

	Balance struct {
		Sender string
	}

	Pay struct {
		Sender      string
		InvoiceText string
	}

	Donate struct {
		Sender string
		Amount uint64
	}

	Help    struct{}
	Party   struct{}
	Version struct{}

	FiatToSats struct {
		Sender   string
		Amount   decimal.Decimal
		Currency string
	}

	SatsToFiat struct {
		Sender   string
		Amount   uint64
		Currency string
	}

	// None means the message carried no command.
	None struct{}
)

func (Tip) Name() string        { return "tip" }
func (Send) Name() string       { return "send" }
func (Invoice) Name() string    { return "invoice" }
func (Balance) Name() string    { return "balance" }
func (Pay) Name() string        { return "pay" }
func (Donate) Name() string     { return "donate" }
func (Help) Name() string       { return "help" }
func (Party) Name() string      { return "party" }
func (Version) Name() string    { return "version" }
func (FiatToSats) Name() string { return "fiat-to-sats" }
func (SatsToFiat) Name() string { return "sats-to-fiat" }
func (None) Name() string       { return "none" }

func (Tip) isCommand()        {}
func (Send) isCommand()       {}
func (Invoice) isCommand()    {}
func (Balance) isCommand()    {}
func (Pay) isCommand()        {}
func (Donate) isCommand()     {}
func (Help) isCommand()       {}
func (Party) isCommand()      {}
func (Version) isCommand()    {}
func (FiatToSats) isCommand() {}
func (SatsToFiat) isCommand() {}
func (None) isCommand()       {}

// IsNone reports whether cmd is absent or the None command.
func IsNone(cmd Command) bool {
	if cmd == nil {
		return true
	}
	_, ok := cmd.(None)
	return ok
}

// Reply is what a processed command sends back: text, an image, or both.
type Reply struct {
	Text  string
	Image []byte
}

// TextReply returns a text-only reply.
func TextReply(text string) Reply {
	return Reply{Text: text}
}

// Empty reports whether the reply carries neither text nor image.
func (r Reply) Empty() bool {
	return r.Text == "" && len(r.Image) == 0
}
