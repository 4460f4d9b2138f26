package views

import (
	"fmt"

	"github.com/claridad-app/claridad/internal/invite"
	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/rivo/tview"
)

// InviteView shows the channel's join link as a QR code.
type InviteView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewInviteView creates a new invite view.
func NewInviteView(theme *ui.Theme) *InviteView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Invite a neighbor ")
	tv.SetTitleColor(theme.TitleColor)

	return &InviteView{TextView: tv, theme: theme}
}

// Name implements Component.
func (iv *InviteView) Name() string { return "Invite" }

// Hints implements Component.
func (iv *InviteView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Show renders the invite link for channelID under base.
func (iv *InviteView) Show(base, channelID, neighborhood string) {
	iv.Clear()
	link, err := invite.Link(base, channelID)
	if err != nil {
		_, _ = fmt.Fprintf(iv, "\n\n%s%s[-]", ui.Tag(iv.theme.FlashErrColor), tview.Escape(err.Error()))
		return
	}
	qr, err := invite.RenderQR(link, "")
	if err != nil {
		_, _ = fmt.Fprintf(iv, "\n\n%s%s[-]", ui.Tag(iv.theme.FlashErrColor), tview.Escape(err.Error()))
		return
	}
	_, _ = fmt.Fprintf(iv, "\n  Scan to join [::b]%s[-:-:-]:\n\n%s\n  [::d]%s[-:-:-]",
		tview.Escape(neighborhood), qr, tview.Escape(link))
}
