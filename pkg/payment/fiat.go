package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tipbot/pkg/command"
)

func (o *Orchestrator) fiatToSats(ctx context.Context, amount decimal.Decimal, currency string) (command.Reply, error) {
	rate, err := o.rate(ctx, currency)
	if err != nil {
		return command.Reply{}, err
	}

	sats, err := satsFor(amount, rate)
	if err != nil {
		return command.Reply{}, newError(ErrorRate, currency, err)
	}
	return command.TextReply(fmt.Sprintf("%s %s %s approximately %d Sats.",
		amount.StringFixed(2), strings.ToUpper(currency), isOrAre(amount), sats)), nil
}

func (o *Orchestrator) satsToFiat(ctx context.Context, sats uint64, currency string) (command.Reply, error) {
	rate, err := o.rate(ctx, currency)
	if err != nil {
		return command.Reply{}, err
	}

	amount := decimal.NewFromUint64(sats)
	return command.TextReply(fmt.Sprintf("%d Sats %s approximately %s %s.",
		sats, isOrAre(amount), fiatFor(sats, rate).StringFixed(2), strings.ToUpper(currency))), nil
}

func (o *Orchestrator) rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	rate, err := o.rates.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, newError(ErrorRate, currency, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, newError(ErrorRate, currency, fmt.Errorf("rate %s is not positive", rate))
	}

	return rate, nil
}

// satsFor converts fiat to satoshi at rate (fiat per bitcoin), truncating.
// Results beyond MaxSats are refused rather than wrapped.
func satsFor(amount decimal.Decimal, rate decimal.Decimal) (uint64, error) {
	sats := amount.Mul(satsPerBitcoin).Div(rate).Truncate(0)
	if sats.GreaterThan(maxSats) {
		return 0, fmt.Errorf("%s converts to more than %s Sats", amount, maxSats)
	}
	return sats.BigInt().Uint64(), nil
}

// fiatFor converts satoshi to fiat at rate (fiat per bitcoin).
func fiatFor(sats uint64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromUint64(sats).Mul(rate).Div(satsPerBitcoin)
}

var maxSats = decimal.NewFromUint64(command.MaxSats)

func isOrAre(amount decimal.Decimal) string {
	if amount.Equal(decimal.NewFromInt(1)) {
		return "is"
	}
	return "are"
}
