// Package scancode renders download links as QR codes for inline display.
package scancode

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Size is the edge length of the generated PNG in pixels.
const Size = 256

// Encode renders content as a PNG QR code and returns it base64 encoded.
// The same input always yields the same output.
func Encode(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, Size)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// DataURI wraps a base64 PNG from Encode for use in an img src.
func DataURI(b64 string) string {
	return "data:image/png;base64," + b64
}
