// Package bolt11 decodes the parts of a Lightning payment request the bot
// needs before paying it: the network prefix and the requested amount.
//
// The data part is checksum-verified but its tagged fields and signature are
// left to the wallet service, which rejects malformed requests on payment.
package bolt11

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	msatPerBTC = 100_000_000_000

	// A payment request always carries at least the 35-bit timestamp.
	minDataGroups = 7
)

var (
	ErrNotPaymentRequest = errors.New("not a lightning payment request")
	ErrInvalidAmount     = errors.New("invalid payment request amount")
)

// PaymentRequest is a decoded payment request.
type PaymentRequest struct {
	Raw        string
	Network    string
	AmountMsat uint64
	HasAmount  bool
}

// AmountSats returns the requested amount truncated to whole satoshis.
func (p PaymentRequest) AmountSats() uint64 {
	return p.AmountMsat / 1000
}

var multipliers = map[byte]struct {
	mul uint64
	div uint64
}{
	'm': {mul: msatPerBTC / 1_000},
	'u': {mul: msatPerBTC / 1_000_000},
	'n': {mul: msatPerBTC / 1_000_000_000},
	'p': {mul: 1, div: 10},
}

// Decode parses text as a payment request, accepting an optional
// "lightning:" URI prefix.
func Decode(text string) (PaymentRequest, error) {
	raw := strings.ToLower(strings.TrimSpace(text))
	raw = strings.TrimPrefix(raw, "lightning:")
	if !strings.HasPrefix(raw, "ln") {
		return PaymentRequest{}, ErrNotPaymentRequest
	}

	hrp, data, err := bech32.DecodeNoLimit(raw)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("%w: %v", ErrNotPaymentRequest, err)
	}
	if len(data) < minDataGroups {
		return PaymentRequest{}, fmt.Errorf("%w: data part too short", ErrNotPaymentRequest)
	}

	network, amount, err := splitHRP(hrp)
	if err != nil {
		return PaymentRequest{}, err
	}

	req := PaymentRequest{Raw: raw, Network: network}
	if amount == "" {
		return req, nil
	}

	msat, err := parseAmount(amount)
	if err != nil {
		return PaymentRequest{}, err
	}
	req.AmountMsat = msat
	req.HasAmount = true

	return req, nil
}

// splitHRP separates "ln<network><amount>" into network and amount parts.
func splitHRP(hrp string) (string, string, error) {
	rest := strings.TrimPrefix(hrp, "ln")
	idx := strings.IndexAny(rest, "0123456789")
	if idx < 0 {
		if rest == "" {
			return "", "", fmt.Errorf("%w: missing network", ErrNotPaymentRequest)
		}
		return rest, "", nil
	}
	if idx == 0 {
		return "", "", fmt.Errorf("%w: missing network", ErrNotPaymentRequest)
	}

	return rest[:idx], rest[idx:], nil
}

func parseAmount(amount string) (uint64, error) {
	digits := amount
	mul, div := uint64(msatPerBTC), uint64(1)

	last := amount[len(amount)-1]
	if m, ok := multipliers[last]; ok {
		digits = amount[:len(amount)-1]
		mul = m.mul
		if m.div > 0 {
			div = m.div
		}
	}

	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if n%div != 0 {
		return 0, fmt.Errorf("%w: sub-millisatoshi amount %q", ErrInvalidAmount, amount)
	}
	n /= div
	if n > ^uint64(0)/mul {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, amount)
	}

	return n * mul, nil
}
