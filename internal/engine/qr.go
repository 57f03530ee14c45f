package engine

import (
	"encoding/base64"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// renderDataURL encodes a pairing code as a PNG data URL, the format the
// dashboard's <img> tag renders directly.
func renderDataURL(code string) string {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		slog.Warn("qr render failed", "error", err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
