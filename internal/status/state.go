package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/claridad-app/claridad/internal/bus"
)

// State is the join state of a chat coordinator.
type State string

const (
	Uninitialized State = "UNINITIALIZED"
	Resolving     State = "RESOLVING"
	Joined        State = "JOINED"
	NoChannel     State = "NO_CHANNEL"
	Reconnecting  State = "RECONNECTING"
)

// validTransitions defines allowed state transitions. There is no edge from
// one joined channel to another: switching always passes through
// UNINITIALIZED.
var validTransitions = map[State][]State{
	Uninitialized: {Resolving},
	Resolving:     {Joined, NoChannel, Uninitialized},
	Joined:        {Reconnecting, Uninitialized},
	Reconnecting:  {Joined, Uninitialized},
	NoChannel:     {Uninitialized},
}

// Machine tracks and enforces coordinator state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	topic   string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Uninitialized state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Uninitialized,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetTopic sets the channel id attached to published status events.
func (m *Machine) SetTopic(topic string) {
	m.mu.Lock()
	m.topic = topic
	m.mu.Unlock()
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Topic:     m.topic,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
