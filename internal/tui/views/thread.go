package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Thread displays the channel's messages and a composer.
type Thread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	typing   *tview.TextView
	title    string

	onSend  func(text string)
	onType  func()
	onLeave func()
}

// NewThread creates a new message thread view.
func NewThread(theme *ui.Theme) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().
		SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.TypingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	t := &Thread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		typing:   typing,
	}

	composer.SetChangedFunc(func(text string) {
		if text != "" && t.onType != nil {
			t.onType()
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := strings.TrimSpace(composer.GetText())
			if text != "" && t.onSend != nil {
				t.onSend(text)
				composer.SetText("")
			}
		case tcell.KeyEscape:
			if t.onLeave != nil {
				t.onLeave()
			}
		}
	})

	return t
}

// Name implements Component.
func (t *Thread) Name() string {
	if t.title != "" {
		return t.title
	}
	return "Messages"
}

// Hints implements Component.
func (t *Thread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "Enter", Description: "Send"},
		{Key: "Esc", Description: "Leave composer"},
	}
}

// SetNeighborhood puts the neighborhood name in the border title.
func (t *Thread) SetNeighborhood(name string) {
	t.title = name
	t.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(name)))
}

// SetOnSend sets the callback for a submitted message.
func (t *Thread) SetOnSend(fn func(text string)) { t.onSend = fn }

// SetOnType sets the callback fired on every edit of a non-empty composer.
func (t *Thread) SetOnType(fn func()) { t.onType = fn }

// SetOnLeave sets the callback for Esc in the composer.
func (t *Thread) SetOnLeave(fn func()) { t.onLeave = fn }

// Update re-renders the message list, keeping the view pinned to the newest
// message.
func (t *Thread) Update(msgs []chat.Message, loading bool) {
	t.messages.Clear()
	if loading && len(msgs) == 0 {
		_, _ = fmt.Fprint(t.messages, "[::d]Loading messages...[-:-:-]")
		return
	}
	if len(msgs) == 0 {
		_, _ = fmt.Fprint(t.messages, "[::d]No messages yet. Say hi to your neighbors.[-:-:-]")
		return
	}
	_, _ = fmt.Fprint(t.messages, RenderMessages(msgs, t.theme, time.Now()))
	t.messages.ScrollToEnd()
}

// SetTyping shows who else is typing.
func (t *Thread) SetTyping(info string) {
	t.typing.Clear()
	if info != "" {
		_, _ = fmt.Fprintf(t.typing, " [::i]%s[-:-:-]", tview.Escape(info))
	}
}

// RenderMessages formats msgs oldest first as tview markup.
func RenderMessages(msgs []chat.Message, theme *ui.Theme, now time.Time) string {
	var b strings.Builder
	for _, m := range msgs {
		color := theme.PeerColor
		if m.IsOwn {
			color = theme.OwnColor
		}
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] %s%s[-]\n",
			ui.ColorName(color), displayText(senderName(m)),
			ui.Tag(theme.TimeColor), formatTimestamp(m.Timestamp, now))

		if m.Type == chat.TypePanic {
			fmt.Fprintf(&b, "[%s::b]PANIC ALERT[-:-:-] ", ui.ColorName(theme.PanicColor))
		}
		b.WriteString(displayText(m.Text))
		b.WriteString("\n")

		if md := m.Metadata; md != nil {
			if md.Location != nil {
				fmt.Fprintf(&b, "%s  @ %s[-]\n", ui.Tag(theme.TimeColor), formatLocation(md.Location))
			}
			if md.Address != "" {
				fmt.Fprintf(&b, "%s  %s[-]\n", ui.Tag(theme.TimeColor), displayText(md.Address))
			}
			for _, media := range md.Media {
				name := media.Name
				if name == "" {
					name = media.URL
				}
				fmt.Fprintf(&b, "%s  [attachment] %s[-]\n", ui.Tag(theme.TimeColor), displayText(name))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Messages returns the messages text view (for focus management).
func (t *Thread) Messages() *tview.TextView {
	return t.messages
}

// Composer returns the composer input field (for focus management).
func (t *Thread) Composer() *tview.InputField {
	return t.composer
}
