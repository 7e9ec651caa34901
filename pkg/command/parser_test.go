package command

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tipbot/pkg/identity"
	"tipbot/pkg/logger"
)

type fakeRoom struct {
	members []string
	senders map[string]string
}

func (r fakeRoom) Members(context.Context) ([]string, error) {
	return r.members, nil
}

func (r fakeRoom) EventSender(_ context.Context, eventID string) (string, error) {
	sender, ok := r.senders[eventID]
	if !ok {
		return "", errors.New("event not found")
	}
	return sender, nil
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func newTestParser() *Parser {
	return NewParser(identity.NewResolver(logger.Discard()), logger.Discard())
}

func parse(t *testing.T, msg Message, room Room) (Command, error) {
	t.Helper()
	if msg.Sender == "" {
		msg.Sender = "@alice:example.com"
	}
	return newTestParser().Parse(context.Background(), msg, room)
}

func TestParseRecognisedCommands(t *testing.T) {
	t.Parallel()

	room := fakeRoom{
		members: []string{"@alice:example.com", "@bob:example.com"},
		senders: map[string]string{"$orig": "@bob:example.com"},
	}

	cases := []struct {
		name string
		msg  Message
		want Command
	}{
		{
			name: "send with memo",
			msg:  Message{Body: "!send 10 @alice:example.com memo here"},
			want: Send{Sender: "@alice:example.com", Amount: 10, Recipient: identity.Chat("@alice:example.com"), Memo: "memo here"},
		},
		{
			name: "send to bare room name",
			msg:  Message{Body: "!send 5 bob"},
			want: Send{Sender: "@alice:example.com", Amount: 5, Recipient: identity.Chat("@bob:example.com")},
		},
		{
			name: "tip uses the replied-to sender",
			msg:  Message{Body: "> quoted line\n!tip 21 great   post", ReplyTo: "$orig"},
			want: Tip{Sender: "@alice:example.com", Amount: 21, Memo: "great post", ReplyTarget: "@bob:example.com"},
		},
		{
			name: "invoice is case-insensitive",
			msg:  Message{Body: "!INVOICE 1000 Coffee"},
			want: Invoice{Sender: "@alice:example.com", Amount: 1000, Memo: "coffee"},
		},
		{
			name: "balance",
			msg:  Message{Body: "!balance"},
			want: Balance{Sender: "@alice:example.com"},
		},
		{
			name: "pay",
			msg:  Message{Body: "!pay LNBC10U1XYZ"},
			want: Pay{Sender: "@alice:example.com", InvoiceText: "lnbc10u1xyz"},
		},
		{
			name: "donate",
			msg:  Message{Body: "!donate 100"},
			want: Donate{Sender: "@alice:example.com", Amount: 100},
		},
		{name: "help", msg: Message{Body: "!help"}, want: Help{}},
		{name: "party", msg: Message{Body: "!party"}, want: Party{}},
		{name: "version", msg: Message{Body: "!version"}, want: Version{}},
		{
			name: "fiat to sats",
			msg:  Message{Body: "!fiat-to-sats 12.50 USD"},
			want: FiatToSats{Sender: "@alice:example.com", Amount: decimal.RequireFromString("12.5"), Currency: "usd"},
		},
		{
			name: "sats to fiat",
			msg:  Message{Body: "!sats-to-fiat 2100 eur"},
			want: SatsToFiat{Sender: "@alice:example.com", Amount: 2100, Currency: "eur"},
		},
		{name: "plain chatter", msg: Message{Body: "hello there"}, want: None{}},
		{name: "keyword not on last line", msg: Message{Body: "!balance\nthanks"}, want: None{}},
	}

	for _, tc := range cases {
		got, err := parse(t, tc.msg, room)
		require.NoError(t, err, tc.name)
		if diff := cmp.Diff(tc.want, got, decimalEqual); diff != "" {
			t.Fatalf("%s: parsed command mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestParseAmountIsExact(t *testing.T) {
	t.Parallel()

	for _, amount := range []uint64{0, 1, 42, MaxSats} {
		got, err := parse(t, Message{Body: "!invoice " + decimal.NewFromUint64(amount).String()}, nil)
		require.NoError(t, err)
		require.Equal(t, amount, got.(Invoice).Amount)
	}
}

func TestParseRecognitionErrors(t *testing.T) {
	t.Parallel()

	room := fakeRoom{members: []string{"@alice:example.com"}}

	for _, body := range []string{
		"!tip",
		"!tip ten",
		"!tip 10",
		"!send",
		"!send -5 @bob:example.com",
		"!send 10",
		"!invoice 1.5",
		"!invoice",
		"!pay",
		"!donate lots",
		"!fiat-to-sats abc usd",
		"!fiat-to-sats -3 usd",
		"!fiat-to-sats 3",
		"!sats-to-fiat 3",
		"!sats-to-fiat 3.5 usd",
		"!invoice 18446744073709552",
		"!send 18446744073709551615 @alice:example.com",
		"!donate 99999999999999999999",
		"!sats-to-fiat 18446744073709552 usd",
		"!fiat-to-sats 1e3000000 usd",
		"!fiat-to-sats 1e-3000000 usd",
		"!fiat-to-sats 1e20 usd",
		"!fiat-to-sats 1000000000000.01 usd",
		"!fiat-to-sats 0.000000001 usd",
		"!fiat-to-sats 123456789012345678901234567890123 usd",
	} {
		cmd, err := parse(t, Message{Body: body}, room)
		require.Error(t, err, body)
		require.Nil(t, cmd, body)

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr, body)
		require.False(t, errors.Is(err, ErrUnresolvedRecipient), body)
	}
}

func TestParseTipReplyLookupFailure(t *testing.T) {
	t.Parallel()

	_, err := parse(t, Message{Body: "!tip 10", ReplyTo: "$missing"}, fakeRoom{})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "!tip", parseErr.Keyword)
}

func TestParseSendUnresolvedRecipientIsDistinct(t *testing.T) {
	t.Parallel()

	room := fakeRoom{members: []string{"@carol:example.com", "@carol:other.org"}}
	_, err := parse(t, Message{Body: "!send 10 carol"}, room)
	require.ErrorIs(t, err, ErrUnresolvedRecipient)
	require.ErrorIs(t, err, identity.ErrUnresolved)
}

func TestParseSendFallsBackToMention(t *testing.T) {
	t.Parallel()

	msg := Message{
		Body:      "!send 10 Dave thanks",
		Formatted: `!send 10 <a href="https://matrix.to/#/@dave:example.com">Dave</a> thanks`,
	}
	got, err := parse(t, msg, fakeRoom{})
	require.NoError(t, err)

	send := got.(Send)
	require.Equal(t, "@dave:example.com", send.Recipient.UserID)
	require.Equal(t, "thanks", send.Memo)
}

func TestParseSendExternalAddress(t *testing.T) {
	t.Parallel()

	got, err := parse(t, Message{Body: "!send 50 tips@wallet.example.com for the talk"}, nil)
	require.NoError(t, err)

	send := got.(Send)
	require.True(t, send.Recipient.IsExternal())
	require.Equal(t, "for the talk", send.Memo)
}

func TestReplyEmpty(t *testing.T) {
	t.Parallel()

	require.True(t, Reply{}.Empty())
	require.False(t, TextReply("hi").Empty())
	require.False(t, Reply{Image: []byte{0x89}}.Empty())
	require.True(t, IsNone(None{}))
	require.True(t, IsNone(nil))
	require.False(t, IsNone(Help{}))
}

func TestParseFiatAmountBounds(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"1000000000000", "1e12", "0.00000001", "12.50"} {
		got, err := parse(t, Message{Body: "!fiat-to-sats " + raw + " usd"}, nil)
		require.NoError(t, err, raw)
		require.True(t, got.(FiatToSats).Amount.Equal(decimal.RequireFromString(raw)), raw)
	}
}
