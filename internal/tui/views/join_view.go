package views

import (
	"fmt"
	"strings"

	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// JoinView asks a user without a channel for their neighborhood.
type JoinView struct {
	*tview.Flex
	theme   *ui.Theme
	message *tview.TextView
	input   *tview.InputField
	onJoin  func(neighborhood string)
}

// NewJoinView creates a new join view.
func NewJoinView(theme *ui.Theme) *JoinView {
	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)
	message.SetTextColor(theme.FgColor)

	input := tview.NewInputField().
		SetLabel(" Neighborhood: ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(message, 0, 1, false).
		AddItem(input, 3, 0, true)
	flex.SetBorder(true)
	flex.SetBorderColor(theme.BorderColor)
	flex.SetBackgroundColor(theme.BgColor)
	flex.SetTitle(" Join your neighborhood ")
	flex.SetTitleColor(theme.TitleColor)

	jv := &JoinView{
		Flex:    flex,
		theme:   theme,
		message: message,
		input:   input,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || jv.onJoin == nil {
			return
		}
		if hood := strings.TrimSpace(input.GetText()); hood != "" {
			jv.onJoin(hood)
		}
	})
	jv.ShowMessage("You are not in a neighborhood chat yet.")
	return jv
}

// Name implements Component.
func (jv *JoinView) Name() string { return "Join" }

// Hints implements Component.
func (jv *JoinView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Join"},
		{Key: "Ctrl-C", Description: "Quit"},
	}
}

// SetOnJoin sets the callback for a submitted neighborhood.
func (jv *JoinView) SetOnJoin(fn func(neighborhood string)) {
	jv.onJoin = fn
}

// ShowMessage displays a status message above the input.
func (jv *JoinView) ShowMessage(msg string) {
	jv.message.Clear()
	_, _ = fmt.Fprintf(jv.message, "\n\n%s", tview.Escape(msg))
}

// Input returns the neighborhood input (for focus management).
func (jv *JoinView) Input() *tview.InputField {
	return jv.input
}
