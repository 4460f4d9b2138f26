// Package tui is the terminal client of a neighborhood channel.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/claridad-app/claridad/internal/api"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/chatview"
	"github.com/claridad-app/claridad/internal/tui/keys"
	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/claridad-app/claridad/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageChat   = "chat"
	pageSearch = "search"
	pageHelp   = "help"
	pageJoin   = "join"
	pageInvite = "invite"

	searchLimit = 50
	flashShort  = 3 * time.Second
	flashLong   = 8 * time.Second
)

// Backend is the part of the daemon the TUI calls outside the view model.
type Backend interface {
	Join(ctx context.Context, neighborhood, userID, userName string) (*chat.Channel, error)
	Search(ctx context.Context, channelID, query string, limit int) ([]api.SearchResult, error)
}

// Options configures the app.
type Options struct {
	Identity chat.Identity
	// InviteURL is the base of the join links shown by :invite.
	InviteURL string
	// Home is attached to panic alerts; nil sends them without a location.
	Home *chat.Location
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *tview.Pages
	root     *tview.Flex
	vm       *chatview.ViewModel
	backend  Backend
	opts     Options
	registry *keys.Registry
	logger   *zap.Logger

	info    *ui.ChannelInfo
	logo    *ui.Logo
	menu    *ui.Menu
	flash   *ui.FlashBar
	prompt  *ui.Prompt
	thread  *views.Thread
	online  *views.OnlineList
	status  *views.StatusBar
	searchV *views.SearchView
	help    *views.HelpView
	join    *views.JoinView
	invite  *views.InviteView

	components map[string]ui.Component
	// front is only touched on the tview goroutine.
	front string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *chatview.ViewModel, backend Backend, opts Options, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    tview.NewPages(),
		vm:       vm,
		backend:  backend,
		opts:     opts,
		registry: keys.NewRegistry(),
		logger:   logger.Named("tui"),
		info:     ui.NewChannelInfo(theme),
		logo:     ui.NewLogo(theme),
		menu:     ui.NewMenu(theme),
		flash:    ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		thread:   views.NewThread(theme),
		online:   views.NewOnlineList(theme),
		status:   views.NewStatusBar(theme),
		searchV:  views.NewSearchView(theme),
		help:     views.NewHelpView(theme),
		join:     views.NewJoinView(theme),
		invite:   views.NewInviteView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.online.SetSelf(opts.Identity.UserID)
	a.components = map[string]ui.Component{
		pageChat:   a.thread,
		pageSearch: a.searchV,
		pageHelp:   a.help,
		pageJoin:   a.join,
		pageInvite: a.invite,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Name: "quit", Key: tcell.KeyRune, Rune: 'q',
		Label: "q", Help: "Quit",
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "help", Key: tcell.KeyRune, Rune: '?',
		Label: "?", Help: "Help",
		Handler: func() { a.show(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "command", Key: tcell.KeyRune, Rune: ':',
		Label: ":", Help: "Command",
		Handler: func() { a.openPrompt(ui.PromptCommand, "") },
	})

	a.registry.AddPage(pageChat, &keys.Action{
		Name: "compose", Key: tcell.KeyRune, Rune: 'i',
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddPage(pageChat, &keys.Action{
		Name: "search", Key: tcell.KeyRune, Rune: '/',
		Label: "/", Help: "Search",
		Handler: func() { a.openPrompt(ui.PromptSearch, "") },
	})
	a.registry.AddPage(pageChat, &keys.Action{
		Name: "panic", Key: tcell.KeyRune, Rune: '!',
		Label: "!", Help: "Panic alert",
		Handler: func() { a.openPrompt(ui.PromptCommand, "panic ") },
	})
	a.registry.AddPage(pageSearch, &keys.Action{
		Name: "results", Key: tcell.KeyTab,
		Handler: func() {
			if a.app.GetFocus() == a.searchV.Results() {
				a.app.SetFocus(a.searchV.Input())
			} else {
				a.app.SetFocus(a.searchV.Results())
			}
		},
	})
}

func (a *App) setupCallbacks() {
	a.thread.SetOnType(a.vm.HandleTyping)
	a.thread.SetOnLeave(func() {
		a.vm.StopTyping()
		a.app.SetFocus(a.thread.Messages())
	})
	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendMessage(a.ctx, text, chat.TypeNormal); err != nil {
				a.logger.Warn("send failed", zap.Error(err))
			}
			a.app.QueueUpdateDraw(a.refresh)
		}()
	})

	a.searchV.SetOnQuery(a.runSearch)
	a.join.SetOnJoin(a.runJoin)

	a.prompt.SetOnCancel(a.closePrompt)
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptSearch:
			a.searchV.SetQuery(text)
			a.runSearch(text)
		case ui.PromptCommand:
			a.execute(ParseCommand(text))
		}
	})
}

func (a *App) setupLayout() {
	body := tview.NewFlex().
		AddItem(a.thread, 0, 3, false).
		AddItem(a.online, 28, 0, false)

	a.pages.AddPage(pageChat, body, true, false)
	a.pages.AddPage(pageSearch, a.searchV, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.AddPage(pageJoin, a.join, true, false)
	a.pages.AddPage(pageInvite, a.invite, true, false)

	header := tview.NewFlex().
		AddItem(a.info, 0, 1, false).
		AddItem(a.logo, 24, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 4, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.flash, 1, 0, false).
		AddItem(a.status, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	focused := a.app.GetFocus()
	if focused == a.prompt.InputField {
		return event
	}

	if event.Key() == tcell.KeyEscape {
		switch a.front {
		case pageSearch, pageHelp, pageInvite:
			a.show(a.home())
			return nil
		}
	}

	// Let text inputs handle their keys; Tab still switches search focus.
	if _, ok := focused.(*tview.InputField); ok && event.Key() != tcell.KeyTab {
		return event
	}
	if a.registry.HandleEvent(a.front, event) {
		return nil
	}
	return event
}

func (a *App) home() string {
	if _, ok := a.vm.Channel(); ok {
		return pageChat
	}
	return pageJoin
}

// show brings page to the front. Must run on the tview goroutine.
func (a *App) show(page string) {
	a.front = page
	a.pages.SwitchToPage(page)

	hints := a.components[page].Hints()
	hints = append(hints, a.registry.Hints(page)...)
	a.menu.Update(hints)

	switch page {
	case pageChat:
		a.app.SetFocus(a.thread.Messages())
	case pageSearch:
		a.app.SetFocus(a.searchV.Input())
	case pageJoin:
		a.app.SetFocus(a.join.Input())
	default:
		a.app.SetFocus(a.pages)
	}
}

func (a *App) openPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode)
	a.prompt.SetText(text)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.show(a.front)
}

// execute runs a ':' command. Must run on the tview goroutine.
func (a *App) execute(cmd Command) {
	if err := cmd.Validate(); err != nil {
		a.vm.Flash.Set(err.Error(), flashLong)
		a.renderFlash()
		return
	}

	switch cmd.Name {
	case "quit":
		a.app.Stop()
	case "help":
		a.show(pageHelp)
	case "search":
		a.searchV.SetQuery(cmd.Args)
		a.runSearch(cmd.Args)
	case "panic":
		go func() {
			if err := a.vm.SendPanic(a.ctx, cmd.Args, a.opts.Home); err != nil {
				a.logger.Warn("panic alert failed", zap.Error(err))
			}
			a.app.QueueUpdateDraw(a.refresh)
		}()
	case "join":
		a.runJoin(cmd.Args)
	case "invite":
		ch, ok := a.vm.Channel()
		if !ok {
			a.vm.Flash.Set("join a neighborhood first", flashLong)
			a.renderFlash()
			return
		}
		a.invite.Show(a.opts.InviteURL, ch.ID, ch.NeighborhoodLabel)
		a.show(pageInvite)
	case "clear":
		class, _ := parseClass(cmd.Args)
		a.vm.ClearCache(class)
		a.vm.Flash.Set(fmt.Sprintf("cache cleared: %s", class), flashShort)
		a.refresh()
	case "reload":
		go a.mount()
	}
}

func (a *App) runSearch(query string) {
	ch, ok := a.vm.Channel()
	if !ok {
		a.vm.Flash.Set("join a neighborhood first", flashLong)
		a.renderFlash()
		return
	}
	a.show(pageSearch)
	go func() {
		results, err := a.backend.Search(a.ctx, ch.ID, query, searchLimit)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.vm.Flash.Set("search failed: "+err.Error(), flashLong)
				a.renderFlash()
				return
			}
			a.searchV.Update(results)
			if len(results) > 0 {
				a.app.SetFocus(a.searchV.Results())
			}
		})
	}()
}

func (a *App) runJoin(neighborhood string) {
	a.join.ShowMessage("Joining " + neighborhood + "...")
	id := a.opts.Identity
	go func() {
		if _, err := a.backend.Join(a.ctx, neighborhood, id.UserID, id.UserName); err != nil {
			a.logger.Warn("join failed", zap.String("neighborhood", neighborhood), zap.Error(err))
			a.app.QueueUpdateDraw(func() {
				a.join.ShowMessage("Could not join: " + err.Error())
				a.show(pageJoin)
			})
			return
		}
		a.remount(true)
	}()
}

func (a *App) mount() {
	a.remount(false)
}

// remount (re)joins the user's channel, dropping the cached assignment
// first when the user switched neighborhoods. Runs off the tview goroutine.
func (a *App) remount(switched bool) {
	var err error
	if switched {
		err = a.vm.SwitchChannel(a.ctx, a.opts.Identity)
	} else {
		err = a.vm.Mount(a.ctx, a.opts.Identity)
	}
	if err != nil {
		a.logger.Warn("mount failed", zap.Error(err))
	}
	a.app.QueueUpdateDraw(func() {
		if ch, ok := a.vm.Channel(); ok {
			a.thread.SetNeighborhood(ch.NeighborhoodLabel)
		} else if msg := a.vm.Error(); msg != "" {
			a.join.ShowMessage(msg)
		}
		a.refresh()
		a.show(a.home())
	})
}

// refresh re-renders everything the view model drives. Must run on the
// tview goroutine.
func (a *App) refresh() {
	now := time.Now()
	stats := a.vm.Stats()

	a.thread.Update(a.vm.Messages(), a.vm.Loading())
	a.thread.SetTyping(a.vm.TypingInfo())
	a.online.Update(a.vm.OnlineUsers(), now)

	var channel, hood string
	if ch, ok := a.vm.Channel(); ok {
		channel, hood = ch.ID, ch.NeighborhoodLabel
	}
	a.status.Set(channel, string(stats.Status), stats.Connected, stats.Online)

	user := a.opts.Identity.UserName
	if user == "" {
		user = a.opts.Identity.UserID
	}
	a.info.Update(&ui.ChannelData{
		User:         user,
		Neighborhood: hood,
		Status:       string(stats.Status),
		Connected:    stats.Connected,
		Online:       stats.Online,
		Messages:     stats.Messages,
		Cached:       stats.Cache.Messages + stats.Cache.ChatInfo + stats.Cache.Typing + stats.Cache.Online,
	})
	a.renderFlash()
}

func (a *App) renderFlash() {
	if msg := a.vm.Error(); msg != "" {
		a.flash.Update(msg, ui.FlashErr)
		return
	}
	a.flash.Update(a.vm.Flash.Get(), ui.FlashInfo)
}

func (a *App) watch() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.refresh)
		case now := <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.status.Tick(now)
				a.renderFlash()
			})
		}
	}
}

// Run starts the TUI and blocks until the user quits. The channel is
// unmounted before Run returns.
func (a *App) Run() error {
	a.show(pageJoin)
	a.join.ShowMessage("Connecting...")
	go a.mount()
	go a.watch()

	err := a.app.Run()
	a.cancel()
	a.vm.Unmount()
	return err
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
