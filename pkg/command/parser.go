package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tipbot/pkg/identity"
	"tipbot/pkg/logger"
)

// Room is the conversation context a message arrived in.
type Room interface {
	identity.Directory
	// EventSender returns the sender of an earlier message in the room.
	EventSender(ctx context.Context, eventID string) (string, error)
}

// Message is the parser input for one chat message.
type Message struct {
	Sender string
	Body   string
	// Formatted is the HTML rendering of Body, if any.
	Formatted string
	// ReplyTo is the id of the message being replied to, if any.
	ReplyTo string
}

// RecipientResolver maps a recipient token to a target.
type RecipientResolver interface {
	Resolve(ctx context.Context, token string, dir identity.Directory, formatted string) (identity.Target, error)
}

type input struct {
	msg   Message
	room  Room
	line  string
	words []string
	// rawWords keeps the original case for recipient tokens.
	rawWords []string
}

type keyword struct {
	prefix string
	parse  func(p *Parser, ctx context.Context, in input) (Command, error)
}

// keywords is matched in order and the first prefix wins.
var keywords = []keyword{
	{prefix: "!tip", parse: (*Parser).parseTip},
	{prefix: "!balance", parse: (*Parser).parseBalance},
	{prefix: "!send", parse: (*Parser).parseSend},
	{prefix: "!invoice", parse: (*Parser).parseInvoice},
	{prefix: "!pay", parse: (*Parser).parsePay},
	{prefix: "!help", parse: func(*Parser, context.Context, input) (Command, error) { return Help{}, nil }},
	{prefix: "!donate", parse: (*Parser).parseDonate},
	{prefix: "!party", parse: func(*Parser, context.Context, input) (Command, error) { return Party{}, nil }},
	{prefix: "!version", parse: func(*Parser, context.Context, input) (Command, error) { return Version{}, nil }},
	{prefix: "!fiat-to-sats", parse: (*Parser).parseFiatToSats},
	{prefix: "!sats-to-fiat", parse: (*Parser).parseSatsToFiat},
}

// Parser turns message text into a Command.
type Parser struct {
	resolver RecipientResolver
	log      *slog.Logger
}

func NewParser(resolver RecipientResolver, log *slog.Logger) *Parser {
	return &Parser{
		resolver: resolver,
		log:      logger.Component(log, "command.parser"),
	}
}

// Parse recognises the command on the last line of msg.Body. Text without a
// known keyword yields None and no error.
func (p *Parser) Parse(ctx context.Context, msg Message, room Room) (Command, error) {
	rawLine := lastLine(msg.Body)
	line := strings.ToLower(rawLine)

	for _, kw := range keywords {
		if !strings.HasPrefix(line, kw.prefix) {
			continue
		}

		in := input{
			msg:      msg,
			room:     room,
			line:     line,
			words:    strings.Fields(line),
			rawWords: strings.Fields(rawLine),
		}
		return kw.parse(p, ctx, in)
	}

	return None{}, nil
}

func lastLine(body string) string {
	body = strings.TrimRight(body, "\r\n")
	if idx := strings.LastIndex(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	}

	return strings.TrimSpace(body)
}

// memo joins the tokens from index start on with single spaces.
func memo(words []string, start int) string {
	if len(words) <= start {
		return ""
	}

	return strings.Join(words[start:], " ")
}

func parseAmount(keyword string, words []string) (uint64, error) {
	if len(words) < 2 {
		return 0, parseErr(keyword, "missing amount", nil)
	}

	amount, err := strconv.ParseUint(words[1], 10, 64)
	if err != nil {
		return 0, parseErr(keyword, fmt.Sprintf("could not parse amount %q", words[1]), err)
	}
	if amount > MaxSats {
		return 0, parseErr(keyword, fmt.Sprintf("amount %d exceeds %d Sats", amount, MaxSats), nil)
	}

	return amount, nil
}

// parseFiat accepts plain decimals up to MaxFiat with at most
// maxFiatDecimals places. The exponent is checked before any comparison so
// inputs like 1e3000000 are refused without being expanded.
func parseFiat(keyword string, text string) (decimal.Decimal, error) {
	if len(text) > maxFiatLength {
		return decimal.Zero, parseErr(keyword, "amount is too long", nil)
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, parseErr(keyword, fmt.Sprintf("could not parse amount %q", text), err)
	}
	if amount.IsNegative() {
		return decimal.Zero, parseErr(keyword, "amount must not be negative", nil)
	}
	if exp := amount.Exponent(); exp < -maxFiatDecimals || exp > maxFiatExponent {
		return decimal.Zero, parseErr(keyword, fmt.Sprintf("amount %q is out of range", text), nil)
	}
	if amount.GreaterThan(MaxFiat) {
		return decimal.Zero, parseErr(keyword, fmt.Sprintf("amount exceeds %s", MaxFiat), nil)
	}

	return amount, nil
}

func (p *Parser) parseTip(ctx context.Context, in input) (Command, error) {
	amount, err := parseAmount("!tip", in.words)
	if err != nil {
		return nil, err
	}

	if in.msg.ReplyTo == "" {
		return nil, parseErr("!tip", "must reply to the message being tipped", nil)
	}
	if in.room == nil {
		return nil, parseErr("!tip", "no room to look up the replied-to message", nil)
	}

	target, err := in.room.EventSender(ctx, in.msg.ReplyTo)
	if err != nil {
		return nil, parseErr("!tip", "could not retrieve the replied-to message", err)
	}
	if target == "" {
		return nil, parseErr("!tip", "replied-to message has no sender", nil)
	}

	return Tip{
		Sender:      in.msg.Sender,
		Amount:      amount,
		Memo:        memo(in.words, 2),
		ReplyTarget: target,
	}, nil
}

func (p *Parser) parseBalance(_ context.Context, in input) (Command, error) {
	return Balance{Sender: in.msg.Sender}, nil
}

func (p *Parser) parseSend(ctx context.Context, in input) (Command, error) {
	amount, err := parseAmount("!send", in.words)
	if err != nil {
		return nil, err
	}
	if len(in.rawWords) < 3 {
		return nil, parseErr("!send", "missing recipient", nil)
	}

	var dir identity.Directory
	if in.room != nil {
		dir = in.room
	}

	target, err := p.resolver.Resolve(ctx, in.rawWords[2], dir, in.msg.Formatted)
	if err != nil {
		if errors.Is(err, identity.ErrUnresolved) {
			return nil, parseErr("!send", fmt.Sprintf("recipient %q", in.rawWords[2]), errors.Join(ErrUnresolvedRecipient, err))
		}
		return nil, parseErr("!send", "could not resolve recipient", err)
	}

	p.log.Debug("Resolved send recipient", "token", in.rawWords[2], "recipient", target.String())

	return Send{
		Sender:    in.msg.Sender,
		Amount:    amount,
		Recipient: target,
		Memo:      memo(in.words, 3),
	}, nil
}

func (p *Parser) parseInvoice(_ context.Context, in input) (Command, error) {
	amount, err := parseAmount("!invoice", in.words)
	if err != nil {
		return nil, err
	}

	return Invoice{Sender: in.msg.Sender, Amount: amount, Memo: memo(in.words, 2)}, nil
}

func (p *Parser) parsePay(_ context.Context, in input) (Command, error) {
	if len(in.words) < 2 {
		return nil, parseErr("!pay", "missing invoice", nil)
	}

	return Pay{Sender: in.msg.Sender, InvoiceText: in.words[1]}, nil
}

func (p *Parser) parseDonate(_ context.Context, in input) (Command, error) {
	amount, err := parseAmount("!donate", in.words)
	if err != nil {
		return nil, err
	}

	return Donate{Sender: in.msg.Sender, Amount: amount}, nil
}

func (p *Parser) parseFiatToSats(_ context.Context, in input) (Command, error) {
	if len(in.words) < 3 {
		return nil, parseErr("!fiat-to-sats", "expected an amount and a currency", nil)
	}

	amount, err := parseFiat("!fiat-to-sats", in.words[1])
	if err != nil {
		return nil, err
	}

	return FiatToSats{Sender: in.msg.Sender, Amount: amount, Currency: in.words[2]}, nil
}

func (p *Parser) parseSatsToFiat(_ context.Context, in input) (Command, error) {
	amount, err := parseAmount("!sats-to-fiat", in.words)
	if err != nil {
		return nil, err
	}
	if len(in.words) < 3 {
		return nil, parseErr("!sats-to-fiat", "missing currency", nil)
	}

	return SatsToFiat{Sender: in.msg.Sender, Amount: amount, Currency: in.words[2]}, nil
}
