package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
	"go.uber.org/zap"
)

// Class names one of the independently expiring data classes.
type Class string

const (
	ClassMessages Class = "messages"
	ClassChatInfo Class = "chat_info"
	ClassTyping   Class = "typing"
	ClassOnline   Class = "online"
	ClassAll      Class = "all"
)

// Config holds per-class freshness windows and the sweep period.
type Config struct {
	MessagesTTL   time.Duration
	ChatInfoTTL   time.Duration
	TypingTTL     time.Duration
	OnlineTTL     time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the stock TTLs.
func DefaultConfig() Config {
	return Config{
		MessagesTTL:   30 * time.Second,
		ChatInfoTTL:   5 * time.Minute,
		TypingTTL:     10 * time.Second,
		OnlineTTL:     30 * time.Second,
		SweepInterval: 5 * time.Minute,
	}
}

// MessagesEntry is the cached message set of a channel.
type MessagesEntry struct {
	Messages             []chat.Message
	LastMessageTimestamp time.Time
}

// Stats counts live entries per class (expired but unswept entries included).
type Stats struct {
	Messages int
	ChatInfo int
	Typing   int
	Online   int
}

type entry[T any] struct {
	data           T
	cachedAt       time.Time
	lastAccessedAt time.Time
}

// Store is a best-effort in-memory cache keyed by channel id. It never
// returns errors: a miss and an expired entry look the same.
type Store struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	logger *zap.Logger

	messages map[string]*entry[MessagesEntry]
	chatInfo map[string]*entry[chat.Channel]
	typing   map[string]*entry[[]chat.TypingUser]
	online   map[string]*entry[[]chat.OnlineUser]

	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty cache.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
		messages: make(map[string]*entry[MessagesEntry]),
		chatInfo: make(map[string]*entry[chat.Channel]),
		typing:   make(map[string]*entry[[]chat.TypingUser]),
		online:   make(map[string]*entry[[]chat.OnlineUser]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lookup[T any](m map[string]*entry[T], key string, ttl time.Duration, now time.Time) (T, bool) {
	e, ok := m[key]
	if !ok || now.Sub(e.cachedAt) > ttl {
		var zero T
		return zero, false
	}
	e.lastAccessedAt = now
	return e.data, true
}

func store[T any](m map[string]*entry[T], key string, data T, now time.Time) {
	m[key] = &entry[T]{data: data, cachedAt: now, lastAccessedAt: now}
}

func sweep[T any](m map[string]*entry[T], ttl time.Duration, now time.Time) int {
	n := 0
	for k, e := range m {
		if now.Sub(e.cachedAt) > ttl {
			delete(m, k)
			n++
		}
	}
	return n
}

// Messages returns the cached messages of a channel.
func (s *Store) Messages(channelID string) (MessagesEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := lookup(s.messages, channelID, s.cfg.MessagesTTL, s.now())
	if !ok {
		return MessagesEntry{}, false
	}
	e.Messages = slices.Clone(e.Messages)
	return e, true
}

// SetMessages replaces the cached message set of a channel.
func (s *Store) SetMessages(channelID string, msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store(s.messages, channelID, newMessagesEntry(slices.Clone(msgs)), s.now())
}

// AppendMessages merges msgs into the cached set and returns the ones that
// were not already present. Without a live entry the batch seeds the cache.
func (s *Store) AppendMessages(channelID string, msgs []chat.Message) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	current, ok := lookup(s.messages, channelID, s.cfg.MessagesTTL, now)
	if !ok {
		seed := dedupe(nil, msgs)
		store(s.messages, channelID, newMessagesEntry(seed), now)
		return slices.Clone(seed)
	}

	inserted := dedupe(current.Messages, msgs)
	if len(inserted) == 0 {
		return nil
	}
	merged := make([]chat.Message, 0, len(current.Messages)+len(inserted))
	merged = append(merged, current.Messages...)
	merged = append(merged, inserted...)
	store(s.messages, channelID, newMessagesEntry(merged), now)
	return slices.Clone(inserted)
}

// dedupe returns the messages of batch whose ids are neither in known nor
// repeated earlier in batch.
func dedupe(known, batch []chat.Message) []chat.Message {
	seen := make(map[string]struct{}, len(known)+len(batch))
	for _, m := range known {
		seen[m.ID] = struct{}{}
	}
	var out []chat.Message
	for _, m := range batch {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

func newMessagesEntry(msgs []chat.Message) MessagesEntry {
	var last time.Time
	for _, m := range msgs {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return MessagesEntry{Messages: msgs, LastMessageTimestamp: last}
}

// ChatInfo returns cached channel metadata.
func (s *Store) ChatInfo(key string) (chat.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := lookup(s.chatInfo, key, s.cfg.ChatInfoTTL, s.now())
	if ok {
		c.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	}
	return c, ok
}

// SetChatInfo caches channel metadata.
func (s *Store) SetChatInfo(key string, info chat.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info.ParticipantIDs = slices.Clone(info.ParticipantIDs)
	store(s.chatInfo, key, info, s.now())
}

// Typing returns the cached typing snapshot.
func (s *Store) Typing(channelID string) ([]chat.TypingUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := lookup(s.typing, channelID, s.cfg.TypingTTL, s.now())
	return slices.Clone(list), ok
}

// SetTyping replaces the cached typing snapshot.
func (s *Store) SetTyping(channelID string, list []chat.TypingUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store(s.typing, channelID, slices.Clone(list), s.now())
}

// ShouldUpdateTyping reports whether candidate holds a different set of
// users than the cached snapshot. A miss always counts as a change.
func (s *Store) ShouldUpdateTyping(channelID string, candidate []chat.TypingUser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := lookup(s.typing, channelID, s.cfg.TypingTTL, s.now())
	if !ok {
		return true
	}
	return !sameUsers(TypingIDs(cached), TypingIDs(candidate))
}

// Online returns the cached presence snapshot.
func (s *Store) Online(channelID string) ([]chat.OnlineUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := lookup(s.online, channelID, s.cfg.OnlineTTL, s.now())
	return slices.Clone(list), ok
}

// SetOnline replaces the cached presence snapshot.
func (s *Store) SetOnline(channelID string, list []chat.OnlineUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store(s.online, channelID, slices.Clone(list), s.now())
}

// ShouldUpdateOnline is ShouldUpdateTyping for presence.
func (s *Store) ShouldUpdateOnline(channelID string, candidate []chat.OnlineUser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := lookup(s.online, channelID, s.cfg.OnlineTTL, s.now())
	if !ok {
		return true
	}
	return !sameUsers(OnlineIDs(cached), OnlineIDs(candidate))
}

// Invalidate drops every class for a channel.
func (s *Store) Invalidate(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, channelID)
	delete(s.chatInfo, channelID)
	delete(s.typing, channelID)
	delete(s.online, channelID)
}

// UserChannelKey is the chat-info key under which a user's channel
// assignment is cached.
func UserChannelKey(userID string) string {
	return "user:" + userID
}

// InvalidateUser drops a user's cached channel assignment together with
// every class of the channel it pointed to. Used when the user switches
// neighborhoods.
func (s *Store) InvalidateUser(userID string) {
	key := UserChannelKey(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.chatInfo[key]; ok {
		id := e.data.ID
		delete(s.messages, id)
		delete(s.chatInfo, id)
		delete(s.typing, id)
		delete(s.online, id)
	}
	delete(s.chatInfo, key)
}

// Clear wipes one class, or everything with ClassAll.
func (s *Store) Clear(class Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch class {
	case ClassMessages:
		clear(s.messages)
	case ClassChatInfo:
		clear(s.chatInfo)
	case ClassTyping:
		clear(s.typing)
	case ClassOnline:
		clear(s.online)
	case ClassAll, "":
		clear(s.messages)
		clear(s.chatInfo)
		clear(s.typing)
		clear(s.online)
	}
	s.logger.Debug("cache cleared", zap.String("class", string(class)))
}

// Stats returns entry counts per class.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Messages: len(s.messages),
		ChatInfo: len(s.chatInfo),
		Typing:   len(s.typing),
		Online:   len(s.online),
	}
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return sweep(s.messages, s.cfg.MessagesTTL, now) +
		sweep(s.chatInfo, s.cfg.ChatInfoTTL, now) +
		sweep(s.typing, s.cfg.TypingTTL, now) +
		sweep(s.online, s.cfg.OnlineTTL, now)
}

// Start runs Sweep every SweepInterval until Stop or ctx is done.
func (s *Store) Start(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop stops the sweep loop and waits for it to exit.
func (s *Store) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
}

func (s *Store) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("cache sweep", zap.Int("evicted", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
