// Package payment executes parsed commands against the wallet service and
// renders their replies.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tipbot/pkg/bolt11"
	"tipbot/pkg/command"
	"tipbot/pkg/identity"
	"tipbot/pkg/lnbits"
	"tipbot/pkg/lnurl"
	"tipbot/pkg/logger"
	"tipbot/pkg/wallet"
)

const PartyText = "🎉🎊🥳 let's PARTY!! 🥳🎊🎉"

const (
	noDonationsText = "Thanks but this agent does not accept donations"
	donationText    = "Thanks for the donation"
)

var satsPerBitcoin = decimal.NewFromInt(100_000_000)

// Provisioner maps a chat identity to its wallet.
type Provisioner interface {
	EnsureWallet(ctx context.Context, chatID string) (wallet.Handle, error)
}

// WalletAPI is the wallet-service surface used once a wallet is known.
type WalletAPI interface {
	WalletInfo(ctx context.Context, w lnbits.Wallet) (lnbits.WalletInfo, error)
	CreateInvoice(ctx context.Context, w lnbits.Wallet, amountMsat uint64, memo string) (lnbits.Invoice, error)
	Pay(ctx context.Context, w lnbits.Wallet, paymentRequest string) error
}

// AddressPayer runs the LNURL-pay flow for external addresses.
type AddressPayer interface {
	FetchPayParams(ctx context.Context, addr lnurl.Address) (lnurl.PayParams, error)
	RequestInvoice(ctx context.Context, params lnurl.PayParams, amountMsat uint64, comment string) (string, error)
}

type RateSource interface {
	Rate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// QRFunc renders a payment request as an image.
type QRFunc func(content string) ([]byte, error)

// Options holds the static parts of replies.
type Options struct {
	Version    string
	BTCAddress string
	// DonateUser receives !donate payments; empty disables donations.
	DonateUser string
	QR         QRFunc
}

// Orchestrator runs one command at a time per call and holds no per-command
// state, so a single instance serves all concurrent messages.
type Orchestrator struct {
	wallets Provisioner
	api     WalletAPI
	address AddressPayer
	rates   RateSource
	opts    Options
	log     *slog.Logger

	newMemo func() string
}

func New(wallets Provisioner, api WalletAPI, address AddressPayer, rates RateSource, opts Options, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		wallets: wallets,
		api:     api,
		address: address,
		rates:   rates,
		opts:    opts,
		log:     logger.Component(log, "payment.orchestrator"),
		newMemo: func() string { return uuid.NewString() },
	}
}

// Execute runs cmd and returns its reply. None yields an empty reply.
func (o *Orchestrator) Execute(ctx context.Context, cmd command.Command) (command.Reply, error) {
	switch c := cmd.(type) {
	case command.Tip:
		return o.send(ctx, c.Sender, identity.Chat(c.ReplyTarget), c.Amount, c.Memo)
	case command.Send:
		return o.send(ctx, c.Sender, c.Recipient, c.Amount, c.Memo)
	case command.Invoice:
		return o.invoice(ctx, c.Sender, c.Amount, c.Memo)
	case command.Balance:
		return o.balance(ctx, c.Sender)
	case command.Pay:
		if err := o.pay(ctx, c.Sender, c.InvoiceText); err != nil {
			return command.Reply{}, err
		}
		return command.TextReply(fmt.Sprintf("%q paid an invoice", c.Sender)), nil
	case command.Donate:
		return o.donate(ctx, c.Sender, c.Amount)
	case command.Help:
		return command.TextReply(o.HelpText()), nil
	case command.Party:
		return command.TextReply(PartyText), nil
	case command.Version:
		return command.TextReply(fmt.Sprintf("My version is %q", o.opts.Version)), nil
	case command.FiatToSats:
		return o.fiatToSats(ctx, c.Amount, c.Currency)
	case command.SatsToFiat:
		return o.satsToFiat(ctx, c.Amount, c.Currency)
	case command.None, nil:
		return command.Reply{}, nil
	default:
		return command.Reply{}, fmt.Errorf("unsupported command %q", cmd.Name())
	}
}

// HelpText lists the commands and the donation address.
func (o *Orchestrator) HelpText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lightning Tip Bot %s\n", o.opts.Version)
	b.WriteString("!tip      - Reply to a message to tip it: !tip <amount> [<memo>]\n")
	b.WriteString("!balance  - Check your balance: !balance\n")
	b.WriteString("!send     - Send funds to a user: !send <amount> <@user> or <@user:domain.com>, or a lightning address <name@domain.com> [<memo>]\n")
	b.WriteString("!invoice  - Receive over Lightning: !invoice <amount> [<memo>]\n")
	b.WriteString("!pay      - Pay over Lightning: !pay <invoice>\n")
	b.WriteString("!help     - Read this help.\n")
	b.WriteString("!donate   - Donate to the bot's developers: !donate <amount>\n")
	b.WriteString("!party    - Start a Party: !party\n")
	b.WriteString("!fiat-to-sats - Convert fiat to satoshis: !fiat-to-sats <amount> <currency (USD, EUR, CHF)>\n")
	b.WriteString("!sats-to-fiat - Convert satoshis to fiat: !sats-to-fiat <amount> <currency (USD, EUR, CHF)>\n")
	b.WriteString("!version  - Print the version of this bot\n")
	if o.opts.BTCAddress != "" {
		fmt.Fprintf(&b, "If you want to help, consider donating or sending some btc to: %s", o.opts.BTCAddress)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) send(ctx context.Context, sender string, to identity.Target, amount uint64, memo string) (command.Reply, error) {
	if to.IsExternal() {
		if err := o.payAddress(ctx, sender, to.Address, amount, memo); err != nil {
			return command.Reply{}, err
		}
	} else {
		paymentRequest, err := o.createInvoice(ctx, to.UserID, amount, memo)
		if err != nil {
			return command.Reply{}, err
		}
		if err := o.pay(ctx, sender, paymentRequest); err != nil {
			return command.Reply{}, err
		}
	}

	o.log.Info("Sent payment", "sender", sender, "recipient", to.String(), "amount_sats", amount)

	if memo != "" {
		return command.TextReply(fmt.Sprintf("%q sent %d Sats to %q with memo %q", sender, amount, to.String(), memo)), nil
	}
	return command.TextReply(fmt.Sprintf("%q sent %d Sats to %q", sender, amount, to.String())), nil
}

func (o *Orchestrator) payAddress(ctx context.Context, sender string, addr lnurl.Address, amount uint64, comment string) error {
	params, err := o.address.FetchPayParams(ctx, addr)
	if err != nil {
		return newError(ErrorExternalAddress, addr.String(), err)
	}

	amountMsat, err := msatFor(amount)
	if err != nil {
		return newError(ErrorExternalAddress, addr.String(), err)
	}

	paymentRequest, err := o.address.RequestInvoice(ctx, params, amountMsat, comment)
	if err != nil {
		return newError(ErrorExternalAddress, addr.String(), err)
	}

	return o.pay(ctx, sender, paymentRequest)
}

func (o *Orchestrator) invoice(ctx context.Context, chatID string, amount uint64, memo string) (command.Reply, error) {
	paymentRequest, err := o.createInvoice(ctx, chatID, amount, memo)
	if err != nil {
		return command.Reply{}, err
	}

	reply := command.TextReply(paymentRequest)
	if o.opts.QR != nil {
		image, err := o.opts.QR(paymentRequest)
		if err != nil {
			o.log.Warn("Could not render invoice QR code", "error", err)
		} else {
			reply.Image = image
		}
	}

	return reply, nil
}

func (o *Orchestrator) createInvoice(ctx context.Context, chatID string, amount uint64, memo string) (string, error) {
	amountMsat, err := msatFor(amount)
	if err != nil {
		return "", newError(ErrorInvoice, chatID, err)
	}

	handle, err := o.ensureWallet(ctx, chatID)
	if err != nil {
		return "", err
	}

	if memo == "" {
		memo = o.newMemo()
	}

	invoice, err := o.api.CreateInvoice(ctx, handle.Wallet, amountMsat, memo)
	if err != nil {
		return "", newError(ErrorInvoice, chatID, err)
	}

	o.log.Debug("Generated invoice", "chat_id", chatID, "payment_hash", invoice.PaymentHash)
	return invoice.PaymentRequest, nil
}

// msatFor converts sats to the wallet service's millisatoshi.
func msatFor(sats uint64) (uint64, error) {
	if sats > command.MaxSats {
		return 0, fmt.Errorf("amount %d Sats does not fit in millisatoshi", sats)
	}
	return sats * 1000, nil
}

// pay settles the full amount of paymentRequest from sender's wallet.
// Requests without an amount are refused before any wallet call.
func (o *Orchestrator) pay(ctx context.Context, sender string, paymentRequest string) error {
	decoded, err := bolt11.Decode(paymentRequest)
	if err != nil {
		return newError(ErrorIncorrectInvoice, "", err)
	}
	if !decoded.HasAmount {
		return newError(ErrorIncorrectInvoice, "payment request has no amount", nil)
	}

	o.log.Info("Paying invoice", "sender", sender, "amount_sats", decoded.AmountSats())

	handle, err := o.ensureWallet(ctx, sender)
	if err != nil {
		return err
	}

	if err := o.api.Pay(ctx, handle.Wallet, decoded.Raw); err != nil {
		return newError(ErrorPayment, sender, err)
	}

	return nil
}

func (o *Orchestrator) balance(ctx context.Context, chatID string) (command.Reply, error) {
	handle, err := o.ensureWallet(ctx, chatID)
	if err != nil {
		return command.Reply{}, err
	}

	info, err := o.api.WalletInfo(ctx, handle.Wallet)
	if err != nil {
		return command.Reply{}, newError(ErrorWalletLookup, chatID, err)
	}

	var sats int64
	if info.Balance != nil {
		sats = *info.Balance / 1000
	}

	return command.TextReply(fmt.Sprintf("Your balance is %d Sats", sats)), nil
}

func (o *Orchestrator) donate(ctx context.Context, sender string, amount uint64) (command.Reply, error) {
	if o.opts.DonateUser == "" {
		return command.TextReply(noDonationsText), nil
	}

	to, ok := identity.ParseDirect(o.opts.DonateUser)
	if !ok {
		to = identity.Chat(o.opts.DonateUser)
	}

	if _, err := o.send(ctx, sender, to, amount, fmt.Sprintf("a generous donation from %s", sender)); err != nil {
		return command.Reply{}, err
	}

	return command.TextReply(donationText), nil
}

func (o *Orchestrator) ensureWallet(ctx context.Context, chatID string) (wallet.Handle, error) {
	handle, err := o.wallets.EnsureWallet(ctx, chatID)
	if err == nil {
		return handle, nil
	}
	if errors.Is(err, wallet.ErrWalletCount) {
		return wallet.Handle{}, newError(ErrorWalletLookup, chatID, err)
	}

	return wallet.Handle{}, newError(ErrorProvisioning, chatID, err)
}
