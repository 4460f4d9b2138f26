// Package invite builds neighborhood join links and renders them as QR codes
// for terminals.
package invite

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Link returns the join link for channelID under base, e.g.
// https://claridad.app/join?channel=chat_palermo.
func Link(base, channelID string) (string, error) {
	if channelID == "" {
		return "", fmt.Errorf("invite: empty channel id")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invite: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invite: base url %q must be absolute", base)
	}
	q := u.Query()
	q.Set("channel", channelID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RenderQR converts content to a compact QR code using Unicode half-block
// characters, two modules per text row. Each line is prefixed with indent.
func RenderQR(content, indent string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("invite: generate qr: %w", err)
	}
	qr.DisableBorder = false

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString(indent)
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
