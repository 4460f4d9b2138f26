package views

import (
	"fmt"
	"time"

	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the connection state, online count and clock.
type StatusBar struct {
	*tview.TextView
	theme     *ui.Theme
	channel   string
	status    string
	connected bool
	online    int
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// Set updates every field and re-renders.
func (sb *StatusBar) Set(channel, status string, connected bool, online int) {
	sb.channel = channel
	sb.status = status
	sb.connected = connected
	sb.online = online
	sb.render(time.Now())
}

// Tick re-renders the clock.
func (sb *StatusBar) Tick(now time.Time) {
	sb.render(now)
}

func (sb *StatusBar) render(now time.Time) {
	sb.Clear()

	icon := ui.Tag(sb.theme.FlashWarnColor) + "○[-]"
	if sb.connected {
		icon = ui.Tag(sb.theme.OnlineColor) + "●[-]"
	}
	channel := sb.channel
	if channel == "" {
		channel = "no channel"
	}

	_, _ = fmt.Fprintf(sb, " [::b]%s[-:-:-] | %s %s | %d online | %s",
		tview.Escape(channel), icon, sb.status, sb.online, now.Format("15:04"))
}
