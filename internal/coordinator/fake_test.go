package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
)

// fakeBackend records calls and lets tests push snapshots and failures.
type fakeBackend struct {
	mu sync.Mutex

	channels     map[string]*chat.Channel
	resolveErr   error
	resolveCalls int

	subs         map[int]*fakeSub
	nextSub      int
	subscribeErr []error

	writes   []chat.NewMessage
	writeErr error

	typingWrites []presenceWrite
	onlineWrites []presenceWrite
	typing       []chat.TypingUser
	online       []chat.OnlineUser
}

type fakeSub struct {
	id         int
	channelID  string
	onSnapshot func([]chat.Message)
	onError    func(error)
	active     bool
}

type presenceWrite struct {
	ChannelID string
	UserID    string
	On        bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		channels: map[string]*chat.Channel{},
		subs:     map[int]*fakeSub{},
	}
}

func (f *fakeBackend) assign(userID, channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[userID] = &chat.Channel{ID: channelID, NeighborhoodLabel: channelID}
}

func (f *fakeBackend) ResolveUserChannel(_ context.Context, userID string) (*chat.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	ch, ok := f.channels[userID]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeBackend) SubscribeMessages(ctx context.Context, channelID string, onSnapshot func([]chat.Message), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.subscribeErr) > 0 {
		err := f.subscribeErr[0]
		f.subscribeErr = f.subscribeErr[1:]
		return nil, err
	}
	f.nextSub++
	sub := &fakeSub{id: f.nextSub, channelID: channelID, onSnapshot: onSnapshot, onError: onError, active: true}
	f.subs[sub.id] = sub
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		sub.active = false
	}, nil
}

func (f *fakeBackend) WriteMessage(_ context.Context, msg chat.NewMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, msg)
	return f.writeErr
}

func (f *fakeBackend) WriteTyping(_ context.Context, channelID, userID, _ string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingWrites = append(f.typingWrites, presenceWrite{channelID, userID, isTyping})
	return nil
}

func (f *fakeBackend) ReadTyping(context.Context, string) ([]chat.TypingUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.TypingUser(nil), f.typing...), nil
}

func (f *fakeBackend) WriteOnline(_ context.Context, channelID, userID, _ string, isOnline bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlineWrites = append(f.onlineWrites, presenceWrite{channelID, userID, isOnline})
	return nil
}

func (f *fakeBackend) ReadOnline(context.Context, string) ([]chat.OnlineUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.OnlineUser(nil), f.online...), nil
}

func (f *fakeBackend) activeSubs() []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, s := range f.subs {
		if s.active {
			out = append(out, s)
		}
	}
	return out
}

// emit delivers a snapshot to every active subscription of channelID.
func (f *fakeBackend) emit(channelID string, msgs []chat.Message) {
	for _, s := range f.activeSubs() {
		if s.channelID == channelID {
			s.onSnapshot(msgs)
		}
	}
}

// fail breaks every active subscription.
func (f *fakeBackend) fail(err error) {
	for _, s := range f.activeSubs() {
		s.onError(err)
	}
}

func (f *fakeBackend) messageWrites() []chat.NewMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.NewMessage(nil), f.writes...)
}

func (f *fakeBackend) onlineLog() []presenceWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presenceWrite(nil), f.onlineWrites...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
