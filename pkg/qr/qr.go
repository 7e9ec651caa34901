// Package qr renders payment requests as QR code images.
package qr

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Size is the edge length in pixels of rendered images.
const Size = 256

// PNG renders content as a PNG image. Payment requests are upper-cased so
// the encoder can use the denser alphanumeric mode.
func PNG(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}

	png, err := qrcode.Encode(strings.ToUpper(content), qrcode.Medium, Size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}

	return png, nil
}
