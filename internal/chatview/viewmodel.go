// Package chatview binds a chat coordinator to UI-friendly state: a merged
// message list, presence lists that change only when their membership does,
// and a typing signal driven by keystrokes.
package chatview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/claridad-app/claridad/internal/cache"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/coordinator"
	"github.com/claridad-app/claridad/internal/status"
	"go.uber.org/zap"
)

// Chat is the coordinator surface the view model drives.
type Chat interface {
	Initialize(ctx context.Context, id chat.Identity) error
	Cleanup(ctx context.Context)
	Status() status.State
	Channel() (chat.Channel, bool)
	OnMessages(cb func([]chat.Message))
	OnTyping(cb func([]chat.TypingUser))
	OnOnline(cb func([]chat.OnlineUser))
	SendMessage(ctx context.Context, text string, typ chat.MessageType, md *chat.Metadata) error
	SendPanicMessage(ctx context.Context, text string, loc *chat.Location) error
	StartTyping(ctx context.Context) error
	StopTyping(ctx context.Context) error
	RefreshTyping(ctx context.Context) error
	RefreshOnline(ctx context.Context) error
	MarkActivity()
}

var _ Chat = (*coordinator.Coordinator)(nil)

// Config holds the typing debounce and presence poll intervals.
type Config struct {
	TypingIdle time.Duration
	TypingPoll time.Duration
	OnlinePoll time.Duration
}

// DefaultConfig returns the stock intervals.
func DefaultConfig() Config {
	return Config{
		TypingIdle: 3 * time.Second,
		TypingPoll: 2 * time.Second,
		OnlinePoll: 10 * time.Second,
	}
}

// Stats summarizes the view for diagnostics.
type Stats struct {
	Messages  int
	Typing    int
	Online    int
	Connected bool
	Loading   bool
	Status    status.State
	Cache     cache.Stats
}

// ViewModel holds the rendered chat state of one mounted session and
// signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	chat   Chat
	cache  *cache.Store
	cfg    Config
	logger *zap.Logger

	identity   chat.Identity
	mounted    bool
	generation uint64
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	messages   []chat.Message
	received   bool
	typing     []chat.TypingUser
	typingHash string
	typingSeen bool
	online     []chat.OnlineUser
	onlineHash string
	onlineSeen bool
	loading    bool
	errMsg     string

	typingState typingState
	typingCh    chan typingSignal

	Flash Flash

	refreshCh chan struct{}
}

// New creates a view model over c. store is the cache shared with c.
func New(c Chat, store *cache.Store, cfg Config, logger *zap.Logger) *ViewModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewModel{
		chat:      c,
		cache:     store,
		cfg:       cfg,
		logger:    logger.Named("chatview"),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Mount joins the user's channel and starts following it. A previous mount
// is unmounted first. Join failures are surfaced through Error.
func (vm *ViewModel) Mount(ctx context.Context, id chat.Identity) error {
	vm.Unmount()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	vm.mu.Lock()
	vm.generation++
	gen := vm.generation
	vm.identity = id
	vm.mounted = true
	vm.cancel = cancel
	vm.messages = nil
	vm.received = false
	vm.typing, vm.typingHash, vm.typingSeen = nil, "", false
	vm.online, vm.onlineHash, vm.onlineSeen = nil, "", false
	vm.loading = true
	vm.errMsg = ""
	vm.typingState = typingState{}
	vm.typingCh = make(chan typingSignal, 16)
	typingCh := vm.typingCh
	vm.mu.Unlock()
	vm.signalRefresh()

	err := vm.chat.Initialize(ctx, id)

	vm.chat.OnMessages(func(msgs []chat.Message) { vm.applyMessages(gen, msgs) })
	vm.chat.OnTyping(func(list []chat.TypingUser) { vm.applyTyping(gen, list) })
	vm.chat.OnOnline(func(list []chat.OnlineUser) { vm.applyOnline(gen, list) })

	vm.wg.Add(2)
	go vm.signalLoop(loopCtx, typingCh)
	go vm.pollLoop(loopCtx)

	vm.mu.Lock()
	if err != nil {
		vm.loading = false
		vm.errMsg = fmt.Sprintf("could not join chat: %v", err)
	} else if vm.chat.Status() != status.Joined && vm.chat.Status() != status.Reconnecting {
		vm.loading = false
	}
	vm.mu.Unlock()
	vm.signalRefresh()

	if err != nil {
		vm.logger.Warn("mount failed", zap.String("user_id", id.UserID), zap.Error(err))
		return err
	}
	vm.logger.Debug("mounted", zap.String("user_id", id.UserID), zap.String("status", string(vm.chat.Status())))
	return nil
}

// Unmount stops all timers and leaves the channel. It is safe to call
// repeatedly; only the first call after a Mount does anything.
func (vm *ViewModel) Unmount() {
	vm.mu.Lock()
	if !vm.mounted {
		vm.mu.Unlock()
		return
	}
	vm.mounted = false
	vm.generation++
	cancel := vm.cancel
	vm.cancel = nil
	vm.typingState.reset()
	vm.mu.Unlock()

	cancel()
	vm.wg.Wait()

	vm.chat.OnMessages(nil)
	vm.chat.OnTyping(nil)
	vm.chat.OnOnline(nil)
	vm.chat.Cleanup(context.Background())
	vm.signalRefresh()
}

func (vm *ViewModel) pollLoop(ctx context.Context) {
	defer vm.wg.Done()

	typingTick := time.NewTicker(vm.cfg.TypingPoll)
	defer typingTick.Stop()
	onlineTick := time.NewTicker(vm.cfg.OnlinePoll)
	defer onlineTick.Stop()

	vm.refreshOnline(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-typingTick.C:
			if err := vm.chat.RefreshTyping(ctx); err != nil && !skippable(err) {
				vm.logger.Debug("typing poll failed", zap.Error(err))
			}
		case <-onlineTick.C:
			vm.refreshOnline(ctx)
		}
	}
}

func (vm *ViewModel) refreshOnline(ctx context.Context) {
	if err := vm.chat.RefreshOnline(ctx); err != nil && !skippable(err) {
		vm.logger.Debug("online poll failed", zap.Error(err))
	}
}

// skippable reports errors that only mean there is nothing to poll.
func skippable(err error) bool {
	return errors.Is(err, coordinator.ErrNotJoined) || errors.Is(err, context.Canceled)
}

// applyMessages merges a delivered snapshot. The first delivery replaces the
// list; later ones add unseen ids and keep the list sorted by timestamp.
func (vm *ViewModel) applyMessages(gen uint64, msgs []chat.Message) {
	vm.mu.Lock()
	if gen != vm.generation {
		vm.mu.Unlock()
		return
	}
	if !vm.received {
		vm.messages = slices.Clone(msgs)
		vm.received = true
	} else {
		vm.messages = mergeMessages(vm.messages, msgs)
	}
	vm.loading = false
	vm.mu.Unlock()
	vm.signalRefresh()
}

func mergeMessages(current, incoming []chat.Message) []chat.Message {
	known := make(map[string]struct{}, len(current))
	for _, m := range current {
		known[m.ID] = struct{}{}
	}
	merged := current
	added := false
	for _, m := range incoming {
		if _, ok := known[m.ID]; ok {
			continue
		}
		known[m.ID] = struct{}{}
		merged = append(merged, m)
		added = true
	}
	if added {
		slices.SortStableFunc(merged, func(a, b chat.Message) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}
	return merged
}

func (vm *ViewModel) applyTyping(gen uint64, list []chat.TypingUser) {
	hash := cache.SetHash(cache.TypingIDs(list))
	vm.mu.Lock()
	if gen != vm.generation || (vm.typingSeen && hash == vm.typingHash) {
		vm.mu.Unlock()
		return
	}
	vm.typing = slices.Clone(list)
	vm.typingHash = hash
	vm.typingSeen = true
	vm.mu.Unlock()
	vm.signalRefresh()
}

func (vm *ViewModel) applyOnline(gen uint64, list []chat.OnlineUser) {
	hash := cache.SetHash(cache.OnlineIDs(list))
	vm.mu.Lock()
	if gen != vm.generation || (vm.onlineSeen && hash == vm.onlineHash) {
		vm.mu.Unlock()
		return
	}
	vm.online = slices.Clone(list)
	vm.onlineHash = hash
	vm.onlineSeen = true
	vm.mu.Unlock()
	vm.signalRefresh()
}

// SendMessage clears the typing flag and sends text. A failure is returned
// and also kept as the visible error.
func (vm *ViewModel) SendMessage(ctx context.Context, text string, typ chat.MessageType) error {
	vm.chat.MarkActivity()
	vm.stopTyping(true)

	if err := vm.chat.SendMessage(ctx, text, typ, nil); err != nil {
		vm.setError(fmt.Sprintf("message not sent: %v", err))
		vm.logger.Warn("send failed", zap.Error(err))
		return err
	}
	vm.setError("")
	vm.Flash.Set("Message sent", 3*time.Second)
	vm.signalRefresh()
	return nil
}

// SendPanic sends a panic alert with an optional location.
func (vm *ViewModel) SendPanic(ctx context.Context, text string, loc *chat.Location) error {
	vm.chat.MarkActivity()
	vm.stopTyping(true)

	if err := vm.chat.SendPanicMessage(ctx, text, loc); err != nil {
		vm.setError(fmt.Sprintf("panic alert not sent: %v", err))
		vm.logger.Error("panic alert failed", zap.Error(err))
		return err
	}
	vm.setError("")
	vm.Flash.Set("Panic alert sent", 5*time.Second)
	vm.signalRefresh()
	return nil
}

// MarkActivity forwards user activity to the coordinator.
func (vm *ViewModel) MarkActivity() {
	vm.chat.MarkActivity()
}

// SwitchChannel remounts after the user was moved to another neighborhood.
// The old channel and the cached assignment are dropped first so the
// coordinator resolves the new channel instead of rejoining the old one.
func (vm *ViewModel) SwitchChannel(ctx context.Context, id chat.Identity) error {
	old, hadOld := vm.chat.Channel()
	vm.Unmount()
	if hadOld {
		vm.cache.Invalidate(old.ID)
	}
	vm.cache.InvalidateUser(id.UserID)
	vm.logger.Info("switching channel", zap.String("from", old.ID), zap.String("user_id", id.UserID))
	return vm.Mount(ctx, id)
}

// ClearCache drops one class of cached entries, or all of them.
func (vm *ViewModel) ClearCache(class cache.Class) {
	vm.cache.Clear(class)
	vm.logger.Debug("cache cleared", zap.String("class", string(class)))
}

func (vm *ViewModel) setError(msg string) {
	vm.mu.Lock()
	vm.errMsg = msg
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Messages returns a copy of the rendered message list.
func (vm *ViewModel) Messages() []chat.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.messages)
}

// TypingUsers returns the last rendered typing set, own user included.
func (vm *ViewModel) TypingUsers() []chat.TypingUser {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.typing)
}

// OnlineUsers returns the last rendered presence set.
func (vm *ViewModel) OnlineUsers() []chat.OnlineUser {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.online)
}

// Loading reports whether the first message snapshot is still pending.
func (vm *ViewModel) Loading() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.loading
}

// Error returns the visible error, or "".
func (vm *ViewModel) Error() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.errMsg
}

// Identity returns the mounted user.
func (vm *ViewModel) Identity() chat.Identity {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.identity
}

// Channel returns the joined channel, if any.
func (vm *ViewModel) Channel() (chat.Channel, bool) {
	return vm.chat.Channel()
}

// Stats returns counts and connection flags.
func (vm *ViewModel) Stats() Stats {
	st := vm.chat.Status()
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return Stats{
		Messages:  len(vm.messages),
		Typing:    len(vm.typing),
		Online:    len(vm.online),
		Connected: st == status.Joined,
		Loading:   vm.loading,
		Status:    st,
		Cache:     vm.cache.Stats(),
	}
}
