package chatview

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// typingState tracks the local typing flag and its idle timer. gen bumps on
// every keystroke and stop so a timer that already fired for an older
// keystroke finds a mismatch and does nothing.
type typingState struct {
	active bool
	gen    uint64
	timer  *time.Timer
}

func (s *typingState) reset() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.active = false
	s.gen++
}

// typingSignal is one start or stop write. done, when set, is closed after
// the write completes.
type typingSignal struct {
	on   bool
	done chan struct{}
}

// HandleTyping is called on every keystroke. The first keystroke signals
// start; the idle timer restarts on each call and signals stop when it
// expires.
func (vm *ViewModel) HandleTyping() {
	vm.mu.Lock()
	if !vm.mounted {
		vm.mu.Unlock()
		return
	}
	start := !vm.typingState.active
	vm.typingState.active = true
	vm.typingState.gen++
	gen := vm.typingState.gen
	if vm.typingState.timer != nil {
		vm.typingState.timer.Stop()
	}
	vm.typingState.timer = time.AfterFunc(vm.cfg.TypingIdle, func() { vm.typingIdle(gen) })
	ch := vm.typingCh
	vm.mu.Unlock()

	if start {
		vm.enqueue(ch, typingSignal{on: true})
	}
}

func (vm *ViewModel) typingIdle(gen uint64) {
	vm.mu.Lock()
	if !vm.mounted || gen != vm.typingState.gen || !vm.typingState.active {
		vm.mu.Unlock()
		return
	}
	vm.typingState.active = false
	vm.typingState.timer = nil
	ch := vm.typingCh
	vm.mu.Unlock()

	vm.enqueue(ch, typingSignal{on: false})
}

// StopTyping cancels the idle timer and signals stop if typing.
func (vm *ViewModel) StopTyping() {
	vm.stopTyping(false)
}

// stopTyping optionally waits for the stop write so a following send cannot
// overtake it.
func (vm *ViewModel) stopTyping(wait bool) {
	vm.mu.Lock()
	if !vm.mounted {
		vm.mu.Unlock()
		return
	}
	was := vm.typingState.active
	vm.typingState.reset()
	ch := vm.typingCh
	vm.mu.Unlock()

	if !was {
		return
	}
	sig := typingSignal{on: false}
	if wait {
		sig.done = make(chan struct{})
	}
	vm.enqueue(ch, sig)
	if wait {
		select {
		case <-sig.done:
		case <-time.After(5 * time.Second):
			vm.logger.Warn("typing stop still pending")
		}
	}
}

func (vm *ViewModel) enqueue(ch chan typingSignal, sig typingSignal) {
	select {
	case ch <- sig:
	default:
		vm.logger.Warn("typing signal dropped", zap.Bool("typing", sig.on))
		if sig.done != nil {
			close(sig.done)
		}
	}
}

// signalLoop performs typing writes in the order they were signalled.
func (vm *ViewModel) signalLoop(ctx context.Context, ch <-chan typingSignal) {
	defer vm.wg.Done()
	for {
		select {
		case <-ctx.Done():
			drainSignals(ch)
			return
		case sig := <-ch:
			var err error
			if sig.on {
				err = vm.chat.StartTyping(ctx)
			} else {
				err = vm.chat.StopTyping(ctx)
			}
			if err != nil && !skippable(err) {
				vm.logger.Debug("typing signal failed", zap.Bool("typing", sig.on), zap.Error(err))
			}
			if sig.done != nil {
				close(sig.done)
			}
		}
	}
}

// drainSignals releases waiters of signals that will never be written.
func drainSignals(ch <-chan typingSignal) {
	for {
		select {
		case sig := <-ch:
			if sig.done != nil {
				close(sig.done)
			}
		default:
			return
		}
	}
}

// TypingInfo describes who else is typing.
func (vm *ViewModel) TypingInfo() string {
	vm.mu.RLock()
	self := vm.identity.UserID
	var names []string
	for _, u := range vm.typing {
		if u.UserID == self {
			continue
		}
		name := u.UserName
		if name == "" {
			name = u.UserID
		}
		names = append(names, name)
	}
	vm.mu.RUnlock()

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return fmt.Sprintf("%s and %d more are typing...", names[0], len(names)-1)
	}
}
