// Package bolt11test builds checksum-valid payment requests for tests.
package bolt11test

import (
	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Request returns a payment request whose human-readable part is hrp, for
// example "lnbc2500u" or "lnbc" for a request without an amount. The data
// part is a fixed filler, so only the prefix and amount are meaningful.
func Request(hrp string) string {
	data := make([]byte, 24)
	for i := range data {
		data[i] = byte(i % 32)
	}

	encoded, err := bech32.Encode(hrp, data)
	if err != nil {
		panic(err)
	}

	return encoded
}
