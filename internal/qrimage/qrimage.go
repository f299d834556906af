// Package qrimage renders payload strings as scannable QR PNGs.
package qrimage

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the pixel edge length used when none is given.
const DefaultSize = 256

// PNG encodes the payload into a QR code image. Medium error recovery
// is enough for screen and printed badges.
func PNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qrimage: empty payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrimage: encode failed: %w", err)
	}
	return png, nil
}
