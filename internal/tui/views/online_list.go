package views

import (
	"fmt"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// OnlineList is the side panel of neighbors currently online.
type OnlineList struct {
	*tview.Table
	theme *ui.Theme
	self  string
}

// NewOnlineList creates a new online users table.
func NewOnlineList(theme *ui.Theme) *OnlineList {
	table := tview.NewTable().
		SetSelectable(false, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitle(" Online ")
	table.SetTitleColor(theme.TitleColor)

	return &OnlineList{Table: table, theme: theme}
}

// SetSelf marks the session user so it is listed first as "you".
func (ol *OnlineList) SetSelf(userID string) {
	ol.self = userID
}

// Update refreshes the list. users is expected in display order.
func (ol *OnlineList) Update(users []chat.OnlineUser, now time.Time) {
	ol.Clear()

	headers := []string{" NAME", " SEEN"}
	for col, h := range headers {
		ol.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(ol.theme.TableHeaderFg).
			SetBackgroundColor(ol.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1-col))
	}

	row := 1
	for _, u := range users {
		name := u.UserName
		if name == "" {
			name = u.UserID
		}
		color := ol.theme.OnlineColor
		if u.UserID == ol.self {
			name += " (you)"
			color = ol.theme.OwnColor
		}
		ol.SetCell(row, 0, tview.NewTableCell(" ● "+displayText(name)).SetExpansion(1).SetTextColor(color))
		ol.SetCell(row, 1, tview.NewTableCell(" "+seenAgo(u.LastSeen, now)).SetTextColor(ol.theme.TimeColor).SetAlign(tview.AlignRight))
		row++
	}

	ol.SetTitle(fmt.Sprintf(" Online (%d) ", len(users)))
}

func seenAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}
