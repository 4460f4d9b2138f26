package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// ChannelData holds the header facts about the mounted channel.
type ChannelData struct {
	User         string
	Neighborhood string
	Status       string
	Connected    bool
	Online       int
	Messages     int
	Cached       int
}

// ChannelInfo displays channel metadata in the header.
type ChannelInfo struct {
	*tview.TextView
	theme *Theme
}

// NewChannelInfo creates a new channel info panel.
func NewChannelInfo(theme *Theme) *ChannelInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ChannelInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the channel info.
func (ci *ChannelInfo) Update(data *ChannelData) {
	ci.Clear()
	if data == nil {
		return
	}

	fg := ColorName(ci.theme.FgColor)
	counter := ColorName(ci.theme.CounterColor)

	hood := data.Neighborhood
	if hood == "" {
		hood = "-"
	}
	status := data.Status
	if data.Connected {
		status = fmt.Sprintf("%s%s[-]", Tag(ci.theme.OnlineColor), status)
	} else {
		status = fmt.Sprintf("%s%s[-]", Tag(ci.theme.FlashWarnColor), status)
	}

	_, _ = fmt.Fprintf(ci,
		"[%s::b]User:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Area:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-] %s\n"+
			"[%s::b]Online:[-:-:-] [%s]%d[-]  [%s::b]Msgs:[-:-:-] [%s]%d[-]  [%s::b]Cache:[-:-:-] [%s]%d[-]",
		fg, counter, tview.Escape(data.User),
		fg, counter, tview.Escape(hood),
		fg, status,
		fg, counter, data.Online, fg, counter, data.Messages, fg, counter, data.Cached,
	)
}
