package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/status"
	"go.uber.org/zap"
)

var (
	errSubscriptionClosed = errors.New("subscription closed")
	errStreamBroken       = errors.New("stream failed before it was installed")
)

// subscription is the live message listener of one joined channel. It
// survives store-side failures by resubscribing until closed.
type subscription struct {
	channelID string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu           sync.Mutex
	current      *stream
	reconnecting bool
	closed       bool
}

// stream is one SubscribeMessages call. Its error callback may run before
// the call returns, so broken is recorded here and checked on install.
type stream struct {
	unsubscribe func()
	installed   bool
	broken      bool
}

func newSubscription(parent context.Context, channelID string) *subscription {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &subscription{channelID: channelID, ctx: ctx, cancel: cancel}
}

// close cancels the listener exactly once and waits for any reconnect loop.
func (s *subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var unsub func()
	if st := s.current; st != nil {
		unsub = st.unsubscribe
		st.unsubscribe = nil
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	if unsub != nil {
		unsub()
	}
}

// open subscribes to the store and installs the stream. A stream that broke
// before install is unsubscribed and reported as errStreamBroken. Only the
// reconnect loop (restore=true) moves the coordinator back to JOINED.
func (c *Coordinator) open(sub *subscription, restore bool) error {
	st := &stream{}
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return backoff.Permanent(errSubscriptionClosed)
	}
	sub.current = st
	sub.mu.Unlock()

	unsub, err := c.backend.SubscribeMessages(sub.ctx, sub.channelID,
		func(msgs []chat.Message) { c.handleSnapshot(sub, msgs) },
		func(err error) { c.handleStreamError(sub, st, err) },
	)
	if err != nil {
		return err
	}

	sub.mu.Lock()
	switch {
	case sub.closed:
		sub.mu.Unlock()
		unsub()
		return backoff.Permanent(errSubscriptionClosed)
	case st.broken:
		sub.mu.Unlock()
		unsub()
		return errStreamBroken
	}
	st.unsubscribe = unsub
	st.installed = true
	if restore && sub.reconnecting {
		sub.reconnecting = false
		_ = c.machine.Transition(status.Joined)
		c.logger.Info("message subscription restored", zap.String("channel_id", sub.channelID))
	}
	sub.mu.Unlock()
	return nil
}

func (c *Coordinator) handleStreamError(sub *subscription, st *stream, err error) {
	sub.mu.Lock()
	if sub.closed || st != sub.current || st.broken {
		sub.mu.Unlock()
		return
	}
	st.broken = true
	if !st.installed {
		// open sees the flag once SubscribeMessages returns.
		sub.mu.Unlock()
		return
	}
	stale := st.unsubscribe
	st.unsubscribe = nil
	sub.mu.Unlock()

	c.beginReconnect(sub, stale, err)
}

// beginReconnect starts the resubscription loop unless one is running.
func (c *Coordinator) beginReconnect(sub *subscription, stale func(), err error) {
	sub.mu.Lock()
	if sub.closed || sub.reconnecting {
		sub.mu.Unlock()
		if stale != nil {
			stale()
		}
		return
	}
	sub.reconnecting = true
	sub.wg.Add(1)
	_ = c.machine.Transition(status.Reconnecting)
	sub.mu.Unlock()

	c.logger.Warn("message subscription lost", zap.String("channel_id", sub.channelID), zap.Error(err))
	go c.reconnect(sub, stale)
}

func (c *Coordinator) reconnect(sub *subscription, stale func()) {
	defer sub.wg.Done()
	if stale != nil {
		stale()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitial
	bo.MaxInterval = c.cfg.ReconnectMax
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(
		func() error { return c.open(sub, true) },
		backoff.WithContext(bo, sub.ctx),
		func(err error, next time.Duration) {
			c.logger.Warn("resubscribe failed", zap.String("channel_id", sub.channelID), zap.Duration("retry_in", next), zap.Error(err))
		},
	)
	if err != nil && !errors.Is(err, errSubscriptionClosed) && sub.ctx.Err() == nil {
		c.logger.Error("resubscribe gave up", zap.String("channel_id", sub.channelID), zap.Error(err))
	}
}
