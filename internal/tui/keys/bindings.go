// Package keys maps key events to actions, per page and globally.
package keys

import (
	"github.com/claridad-app/claridad/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
)

// Action represents a keybinding action.
type Action struct {
	Name    string
	Key     tcell.Key
	Rune    rune
	Label   string // shown in the menu; empty hides the binding
	Help    string
	Handler func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings in registration order, page bindings taking
// precedence over global ones.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page. A later binding with
// the same name replaces the earlier one.
func (r *Registry) AddGlobal(a *Action) {
	r.global = upsert(r.global, a)
}

// AddPage registers a page-specific binding.
func (r *Registry) AddPage(page string, a *Action) {
	r.pages[page] = upsert(r.pages[page], a)
}

func upsert(list []*Action, a *Action) []*Action {
	for i, existing := range list {
		if existing.Name == a.Name {
			list[i] = a
			return list
		}
	}
	return append(list, a)
}

// Hints returns the visible bindings for page, page bindings first.
func (r *Registry) Hints(page string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, list := range [][]*Action{r.pages[page], r.global} {
		for _, a := range list {
			if a.Label != "" {
				hints = append(hints, ui.MenuHint{Key: a.Label, Description: a.Help})
			}
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action for page.
// Returns true if a handler ran.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	for _, list := range [][]*Action{r.pages[page], r.global} {
		for _, a := range list {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
