package status

import (
	"testing"

	"github.com/claridad-app/claridad/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Uninitialized {
		t.Errorf("initial state = %s, want UNINITIALIZED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Uninitialized, Resolving},
		{Resolving, Joined},
		{Resolving, NoChannel},
		{Resolving, Uninitialized},
		{Joined, Reconnecting},
		{Joined, Uninitialized},
		{Reconnecting, Joined},
		{Reconnecting, Uninitialized},
		{NoChannel, Uninitialized},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Joined); err == nil {
		t.Error("Transition(UNINITIALIZED -> JOINED) should fail")
	}
}

// TestNoDirectChannelSwitch verifies a joined coordinator cannot re-enter
// RESOLVING without tearing down first.
func TestNoDirectChannelSwitch(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Joined)

	if err := m.Transition(Resolving); err == nil {
		t.Fatal("Transition(JOINED -> RESOLVING) should fail")
	}
	if m.Current() != Joined {
		t.Errorf("state = %s, want JOINED (should not have changed)", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	m := NewMachine(b)
	m.SetTopic("chat_palermo")
	if err := m.Transition(Resolving); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	if evt.Topic != "chat_palermo" {
		t.Errorf("event topic = %q, want chat_palermo", evt.Topic)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Uninitialized || change.To != Resolving {
		t.Errorf("change = %v -> %v, want UNINITIALIZED -> RESOLVING", change.From, change.To)
	}
}

// TestReconnectCycle verifies JOINED -> RECONNECTING -> JOINED -> UNINITIALIZED.
func TestReconnectCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Joined)

	for _, s := range []State{Reconnecting, Joined, Reconnecting, Uninitialized} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Uninitialized: {},
		Resolving:     {Resolving},
		Joined:        {Resolving, Joined},
		NoChannel:     {Resolving, NoChannel},
		Reconnecting:  {Resolving, Joined, Reconnecting},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
