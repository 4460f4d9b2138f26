package views

import (
	"fmt"

	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays the key binding and command reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)

	_, _ = fmt.Fprintf(hv, `
  [::b]Keys[-:-:-]

  %[1]si[-]        Focus composer        %[1]sEsc[-]     Leave composer / go back
  %[1]sEnter[-]    Send message          %[1]s![-]       Panic alert (prompt)
  %[1]s/[-]        Search messages       %[1]s:[-]       Command mode
  %[1]s?[-]        This help             %[1]sq[-]       Quit

  [::b]Commands[-:-:-]

  %[1]s:panic <text>[-]          Send a panic alert to the neighborhood
  %[1]s:search <query>[-]        Search this channel
  %[1]s:join <neighborhood>[-]   Join a neighborhood channel
  %[1]s:invite[-]                Show the channel's invite QR code
  %[1]s:clear [messages|typing|online|chat_info|all][-]
                          Drop cached data
  %[1]s:reload[-]                Re-mount the channel
  %[1]s:quit[-] / %[1]s:q[-]            Quit

  Typing is announced to your neighbors while you write and
  withdrawn after a few seconds of inactivity or when you send.
`, kc)
}
