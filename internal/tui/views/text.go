package views

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/claridad-app/claridad/internal/chat"
	"github.com/rivo/tview"
)

// displayText makes user-supplied text safe for a dynamic-color view: emoji
// modifiers that tcell renders at the wrong width are dropped, control
// characters other than newlines become spaces and color tags are escaped.
func displayText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case isEmojiModifier(r):
		case r == '\n':
			b.WriteRune(r)
		case unicode.IsControl(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return tview.Escape(b.String())
}

func isEmojiModifier(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// formatTimestamp shows the clock for today and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02 15:04")
}

func senderName(m chat.Message) string {
	if m.IsOwn {
		return "You"
	}
	if m.Metadata != nil && m.Metadata.Anonymous {
		return "Anonymous"
	}
	if m.UserName != "" {
		return m.UserName
	}
	return m.UserID
}

func formatLocation(loc *chat.Location) string {
	s := fmt.Sprintf("%.5f, %.5f", loc.Lat, loc.Lng)
	if loc.Accuracy != nil {
		s += fmt.Sprintf(" ±%.0fm", *loc.Accuracy)
	}
	if loc.Fallback {
		s += " (approx.)"
	}
	return s
}
