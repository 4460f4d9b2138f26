package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPageBindingWins(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Name: "quit", Key: tcell.KeyRune, Rune: 'q', Label: "q", Help: "Quit", Handler: func() { got = "global" }})
	r.AddPage("chat", &Action{Name: "back", Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "page" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if !r.HandleEvent("chat", ev) || got != "page" {
		t.Errorf("chat page: handled by %q, want page", got)
	}
	if !r.HandleEvent("help", ev) || got != "global" {
		t.Errorf("help page: handled by %q, want global", got)
	}
	if r.HandleEvent("help", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key reported as handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	fired := false
	r.AddGlobal(&Action{Name: "refresh", Key: tcell.KeyF5, Handler: func() { fired = true }})
	r.HandleEvent("chat", tcell.NewEventKey(tcell.KeyF5, 0, tcell.ModNone))
	if !fired {
		t.Error("F5 binding did not fire")
	}
}

func TestHintsOrderAndReplace(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Name: "help", Key: tcell.KeyRune, Rune: '?', Label: "?", Help: "Help", Handler: func() {}})
	r.AddGlobal(&Action{Name: "hidden", Key: tcell.KeyRune, Rune: 'z', Handler: func() {}})
	r.AddPage("chat", &Action{Name: "compose", Key: tcell.KeyRune, Rune: 'i', Label: "i", Help: "Write", Handler: func() {}})
	r.AddPage("chat", &Action{Name: "compose", Key: tcell.KeyRune, Rune: 'i', Label: "i", Help: "Compose", Handler: func() {}})

	hints := r.Hints("chat")
	if len(hints) != 2 {
		t.Fatalf("hints = %+v, want 2", hints)
	}
	if hints[0].Description != "Compose" || hints[1].Description != "Help" {
		t.Errorf("hints = %+v", hints)
	}
}
