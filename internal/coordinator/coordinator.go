package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/claridad-app/claridad/internal/bus"
	"github.com/claridad-app/claridad/internal/cache"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/status"
	"go.uber.org/zap"
)

// Config tunes the resubscription backoff.
type Config struct {
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// DefaultConfig returns the stock backoff settings.
func DefaultConfig() Config {
	return Config{
		ReconnectInitial: 500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
	}
}

// Coordinator keeps one session joined to at most one chat channel. It owns
// the live message subscription, forwards snapshots to a single observer
// per event class and keeps the cache warm with what it sees.
type Coordinator struct {
	backend Backend
	cache   *cache.Store
	bus     *bus.Bus
	logger  *zap.Logger
	machine *status.Machine
	cfg     Config

	// life serializes Initialize and Cleanup.
	life sync.Mutex

	mu         sync.Mutex
	identity   chat.Identity
	channel    *chat.Channel
	sub        *subscription
	onMessages func([]chat.Message)
	onTyping   func([]chat.TypingUser)
	onOnline   func([]chat.OnlineUser)
	typingGate snapshotGate
	onlineGate snapshotGate
}

// New creates a coordinator in the UNINITIALIZED state.
func New(backend Backend, store *cache.Store, b *bus.Bus, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		backend: backend,
		cache:   store,
		bus:     b,
		logger:  logger.Named("coordinator"),
		machine: status.NewMachine(b),
		cfg:     cfg,
	}
}

// Status returns the current join state.
func (c *Coordinator) Status() status.State {
	return c.machine.Current()
}

// ChannelID returns the joined channel id, or "" when not joined.
func (c *Coordinator) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return ""
	}
	return c.channel.ID
}

// Channel returns a copy of the joined channel's metadata.
func (c *Coordinator) Channel() (chat.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return chat.Channel{}, false
	}
	return *c.channel, true
}

// Identity returns the session user.
func (c *Coordinator) Identity() chat.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Initialize joins the channel assigned to the user and opens the message
// subscription. A prior join is torn down first. A user without a channel
// leaves the coordinator in NO_CHANNEL and is not an error; a failing
// resolver is reported wrapped in ErrNoChannel.
func (c *Coordinator) Initialize(ctx context.Context, id chat.Identity) error {
	c.life.Lock()
	defer c.life.Unlock()

	c.cleanupLocked(ctx)

	c.mu.Lock()
	c.identity = id
	c.typingGate = snapshotGate{}
	c.onlineGate = snapshotGate{}
	c.mu.Unlock()

	if err := c.machine.Transition(status.Resolving); err != nil {
		return err
	}

	ch, err := c.resolveChannel(ctx, id.UserID)
	if err != nil {
		c.logger.Warn("channel resolution failed", zap.String("user_id", id.UserID), zap.Error(err))
		_ = c.machine.Transition(status.NoChannel)
		return fmt.Errorf("%w: %v", ErrNoChannel, err)
	}
	if ch == nil {
		c.logger.Info("user has no chat channel", zap.String("user_id", id.UserID))
		_ = c.machine.Transition(status.NoChannel)
		return nil
	}

	sub := newSubscription(ctx, ch.ID)
	c.mu.Lock()
	c.channel = ch
	c.sub = sub
	c.mu.Unlock()

	c.machine.SetTopic(ch.ID)
	_ = c.machine.Transition(status.Joined)
	c.logger.Info("joined chat channel", zap.String("channel_id", ch.ID), zap.String("user_id", id.UserID))

	if err := c.open(sub, false); err != nil {
		c.beginReconnect(sub, nil, err)
	}

	if err := c.backend.WriteOnline(ctx, ch.ID, id.UserID, id.UserName, true); err != nil {
		c.logger.Warn("mark online failed", zap.String("channel_id", ch.ID), zap.Error(err))
	}
	return nil
}

func (c *Coordinator) resolveChannel(ctx context.Context, userID string) (*chat.Channel, error) {
	if ch, ok := c.cache.ChatInfo(cache.UserChannelKey(userID)); ok {
		return &ch, nil
	}
	ch, err := c.backend.ResolveUserChannel(ctx, userID)
	if err != nil || ch == nil {
		return nil, err
	}
	c.cache.SetChatInfo(cache.UserChannelKey(userID), *ch)
	c.cache.SetChatInfo(ch.ID, *ch)
	return ch, nil
}

// Cleanup tears down the subscription and marks the user offline. Failures
// are logged. Calling it while not joined does nothing.
func (c *Coordinator) Cleanup(ctx context.Context) {
	c.life.Lock()
	defer c.life.Unlock()
	c.cleanupLocked(ctx)
}

func (c *Coordinator) cleanupLocked(ctx context.Context) {
	c.mu.Lock()
	sub := c.sub
	ch := c.channel
	id := c.identity
	c.sub = nil
	c.channel = nil
	c.mu.Unlock()

	if sub != nil {
		sub.close()
	}
	if ch != nil {
		if err := c.backend.WriteTyping(ctx, ch.ID, id.UserID, id.UserName, false); err != nil {
			c.logger.Warn("clear typing on cleanup failed", zap.String("channel_id", ch.ID), zap.Error(err))
		}
		if err := c.backend.WriteOnline(ctx, ch.ID, id.UserID, id.UserName, false); err != nil {
			c.logger.Warn("mark offline failed", zap.String("channel_id", ch.ID), zap.Error(err))
		}
		c.logger.Info("left chat channel", zap.String("channel_id", ch.ID))
	}
	if c.machine.Current() != status.Uninitialized {
		_ = c.machine.Transition(status.Uninitialized)
	}
	c.machine.SetTopic("")
}

// OnMessages registers the message observer, replacing any previous one.
// A cached message set is delivered before this returns.
func (c *Coordinator) OnMessages(cb func([]chat.Message)) {
	c.mu.Lock()
	c.onMessages = cb
	chID := c.channelIDLocked()
	c.mu.Unlock()

	if cb == nil || chID == "" {
		return
	}
	if entry, ok := c.cache.Messages(chID); ok {
		cb(entry.Messages)
	}
}

// OnTyping registers the typing observer, replacing any previous one.
func (c *Coordinator) OnTyping(cb func([]chat.TypingUser)) {
	c.mu.Lock()
	c.onTyping = cb
	chID := c.channelIDLocked()
	c.mu.Unlock()

	if cb == nil || chID == "" {
		return
	}
	if list, ok := c.cache.Typing(chID); ok {
		cb(list)
	}
}

// OnOnline registers the presence observer, replacing any previous one.
func (c *Coordinator) OnOnline(cb func([]chat.OnlineUser)) {
	c.mu.Lock()
	c.onOnline = cb
	chID := c.channelIDLocked()
	c.mu.Unlock()

	if cb == nil || chID == "" {
		return
	}
	if list, ok := c.cache.Online(chID); ok {
		cb(list)
	}
}

func (c *Coordinator) channelIDLocked() string {
	if c.channel == nil {
		return ""
	}
	return c.channel.ID
}

// session returns the identity and joined channel id under the lock.
func (c *Coordinator) session() (chat.Identity, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.channelIDLocked()
}

// SendMessage writes a message to the joined channel. The message shows up
// through the subscription once the store confirms it; nothing is applied
// locally and failures are not retried.
func (c *Coordinator) SendMessage(ctx context.Context, text string, typ chat.MessageType, md *chat.Metadata) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if typ == "" {
		typ = chat.TypeNormal
	}
	if !typ.Valid() {
		return fmt.Errorf("unknown message type %q", typ)
	}
	id, chID := c.session()
	if chID == "" {
		return ErrNotJoined
	}

	err := c.backend.WriteMessage(ctx, chat.NewMessage{
		ChannelID: chID,
		UserID:    id.UserID,
		UserName:  id.UserName,
		Text:      text,
		Type:      typ,
		Metadata:  md,
	})
	if err != nil {
		c.logger.Error("send message failed", zap.String("channel_id", chID), zap.Error(err))
		c.publish(bus.KindSendFailed, chID, err.Error())
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// SendPanicMessage sends a panic alert, attaching loc when known.
func (c *Coordinator) SendPanicMessage(ctx context.Context, text string, loc *chat.Location) error {
	var md *chat.Metadata
	if loc != nil {
		md = md.WithLocation(loc)
	}
	return c.SendMessage(ctx, text, chat.TypePanic, md)
}

// StartTyping flags the session user as typing.
func (c *Coordinator) StartTyping(ctx context.Context) error {
	return c.writeTyping(ctx, true)
}

// StopTyping clears the session user's typing flag.
func (c *Coordinator) StopTyping(ctx context.Context) error {
	return c.writeTyping(ctx, false)
}

func (c *Coordinator) writeTyping(ctx context.Context, typing bool) error {
	id, chID := c.session()
	if chID == "" {
		return ErrNotJoined
	}
	if err := c.backend.WriteTyping(ctx, chID, id.UserID, id.UserName, typing); err != nil {
		c.logger.Warn("typing write failed", zap.Bool("typing", typing), zap.Error(err))
		return fmt.Errorf("write typing: %w", err)
	}
	return nil
}

// RefreshTyping pulls the typing snapshot and forwards it only when the set
// of typing users changed.
func (c *Coordinator) RefreshTyping(ctx context.Context) error {
	_, chID := c.session()
	if chID == "" {
		return ErrNotJoined
	}
	list, err := c.backend.ReadTyping(ctx, chID)
	if err != nil {
		c.logger.Warn("typing read failed", zap.String("channel_id", chID), zap.Error(err))
		return fmt.Errorf("read typing: %w", err)
	}
	if !c.cache.ShouldUpdateTyping(chID, list) {
		return nil
	}
	c.cache.SetTyping(chID, list)

	c.mu.Lock()
	cb := c.onTyping
	changed := c.typingGate.pass(cache.SetHash(cache.TypingIDs(list)))
	c.mu.Unlock()
	if changed && cb != nil {
		cb(list)
	}
	return nil
}

// RefreshOnline re-asserts the session user's presence, then pulls the
// presence snapshot and forwards it only when the set of users changed.
func (c *Coordinator) RefreshOnline(ctx context.Context) error {
	id, chID := c.session()
	if chID == "" {
		return ErrNotJoined
	}
	if err := c.backend.WriteOnline(ctx, chID, id.UserID, id.UserName, true); err != nil {
		c.logger.Warn("presence heartbeat failed", zap.String("channel_id", chID), zap.Error(err))
	}
	list, err := c.backend.ReadOnline(ctx, chID)
	if err != nil {
		c.logger.Warn("online read failed", zap.String("channel_id", chID), zap.Error(err))
		return fmt.Errorf("read online: %w", err)
	}
	if !c.cache.ShouldUpdateOnline(chID, list) {
		return nil
	}
	c.cache.SetOnline(chID, list)

	c.mu.Lock()
	cb := c.onOnline
	changed := c.onlineGate.pass(cache.SetHash(cache.OnlineIDs(list)))
	c.mu.Unlock()
	if changed && cb != nil {
		cb(list)
	}
	return nil
}

// MarkActivity is reserved for presence heuristics and has no effect.
func (c *Coordinator) MarkActivity() {}

func (c *Coordinator) handleSnapshot(sub *subscription, msgs []chat.Message) {
	if sub.ctx.Err() != nil {
		return
	}
	id, _ := c.session()

	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		m.IsOwn = m.UserID == id.UserID
		if m.ChannelID == "" {
			m.ChannelID = sub.channelID
		}
		out[i] = m
	}
	c.cache.SetMessages(sub.channelID, out)
	c.publish(bus.KindSnapshot, sub.channelID, len(out))

	c.mu.Lock()
	cb := c.onMessages
	c.mu.Unlock()
	if cb != nil {
		cb(out)
	}
}

func (c *Coordinator) publish(kind, topic string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Topic: topic, Timestamp: time.Now(), Payload: payload})
}

// snapshotGate remembers the last set forwarded to an observer.
type snapshotGate struct {
	hash string
	seen bool
}

func (g *snapshotGate) pass(hash string) bool {
	if g.seen && g.hash == hash {
		return false
	}
	g.hash = hash
	g.seen = true
	return true
}
