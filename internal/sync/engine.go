package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claridad-app/claridad/internal/bus"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/coordinator"
	"github.com/claridad-app/claridad/internal/store"
	"go.uber.org/zap"
)

var _ coordinator.Backend = (*Engine)(nil)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotParticipant  = errors.New("user is not a participant of the channel")
)

// Engine is the authoritative chat backend of a daemon: writes go to the
// store and every committed message triggers a fresh snapshot for the
// channel's subscribers.
type Engine struct {
	db       *store.DB
	presence coordinator.PresenceStore
	bus      *bus.Bus
	logger   *zap.Logger
	// HistoryLimit caps snapshots to the newest messages; 0 means all.
	HistoryLimit int
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, presence coordinator.PresenceStore, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:       db,
		presence: presence,
		bus:      b,
		logger:   logger,
	}
}

// Join assigns a user to a neighborhood channel.
func (e *Engine) Join(neighborhood, userID, userName string) (*chat.Channel, error) {
	ch, err := e.db.JoinChannel(neighborhood, userID, userName)
	if err != nil {
		return nil, err
	}
	e.bus.Publish(bus.Event{
		Kind:      bus.KindChannelJoined,
		Topic:     ch.ID,
		Timestamp: time.Now(),
		Payload:   userID,
	})
	return ch, nil
}

// ResolveUserChannel returns the user's channel or nil.
func (e *Engine) ResolveUserChannel(_ context.Context, userID string) (*chat.Channel, error) {
	return e.db.UserChannel(userID)
}

// Channel returns channel metadata or nil.
func (e *Engine) Channel(channelID string) (*chat.Channel, error) {
	return e.db.GetChannel(channelID)
}

// WriteMessage stores a message and announces it to subscribers.
func (e *Engine) WriteMessage(_ context.Context, nm chat.NewMessage) error {
	_, err := e.Post(nm)
	return err
}

// Post is WriteMessage returning the stored message.
func (e *Engine) Post(nm chat.NewMessage) (chat.Message, error) {
	ch, err := e.db.GetChannel(nm.ChannelID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("load channel: %w", err)
	}
	if ch == nil {
		return chat.Message{}, fmt.Errorf("%w: %s", ErrChannelNotFound, nm.ChannelID)
	}
	if !ch.HasParticipant(nm.UserID) {
		return chat.Message{}, fmt.Errorf("%w: %s in %s", ErrNotParticipant, nm.UserID, nm.ChannelID)
	}
	msg, err := e.db.InsertMessage(nm)
	if err != nil {
		return chat.Message{}, err
	}
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageWritten,
		Topic:     msg.ChannelID,
		Timestamp: time.Now(),
		Payload:   msg.ID,
	})
	e.logger.Debug("message stored", zap.String("channel_id", msg.ChannelID), zap.String("msg_id", msg.ID), zap.String("type", string(msg.Type)))
	return msg, nil
}

// Channels lists every neighborhood channel.
func (e *Engine) Channels() ([]chat.Channel, error) {
	return e.db.ListChannels()
}

// Search finds messages of a channel containing query.
func (e *Engine) Search(channelID, query string, limit int) ([]store.SearchResult, error) {
	return e.db.SearchMessages(channelID, query, limit)
}

// Snapshot returns the current message set of a channel.
func (e *Engine) Snapshot(channelID string) ([]chat.Message, error) {
	return e.db.ListMessages(channelID, e.HistoryLimit)
}

// SubscribeMessages delivers the full snapshot immediately and again after
// every write to the channel. Bursts of writes collapse into one snapshot.
func (e *Engine) SubscribeMessages(ctx context.Context, channelID string, onSnapshot func([]chat.Message), onError func(error)) (func(), error) {
	ch, unsub := e.bus.SubscribeTopic("message.", channelID, 256)

	initial, err := e.Snapshot(channelID)
	if err != nil {
		unsub()
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsub()
		onSnapshot(initial)
		for {
			select {
			case <-ch:
				drain(ch)
				msgs, err := e.Snapshot(channelID)
				if err != nil {
					e.logger.Error("snapshot query failed", zap.String("channel_id", channelID), zap.Error(err))
					if ctx.Err() == nil {
						onError(err)
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				onSnapshot(msgs)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func drain(ch <-chan bus.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (e *Engine) WriteTyping(ctx context.Context, channelID, userID, userName string, isTyping bool) error {
	if err := e.presence.WriteTyping(ctx, channelID, userID, userName, isTyping); err != nil {
		return err
	}
	e.bus.Publish(bus.Event{Kind: bus.KindTypingChanged, Topic: channelID, Timestamp: time.Now(), Payload: userID})
	return nil
}

func (e *Engine) ReadTyping(ctx context.Context, channelID string) ([]chat.TypingUser, error) {
	return e.presence.ReadTyping(ctx, channelID)
}

func (e *Engine) WriteOnline(ctx context.Context, channelID, userID, userName string, isOnline bool) error {
	if err := e.presence.WriteOnline(ctx, channelID, userID, userName, isOnline); err != nil {
		return err
	}
	e.bus.Publish(bus.Event{Kind: bus.KindOnlineChanged, Topic: channelID, Timestamp: time.Now(), Payload: userID})
	return nil
}

func (e *Engine) ReadOnline(ctx context.Context, channelID string) ([]chat.OnlineUser, error) {
	return e.presence.ReadOnline(ctx, channelID)
}
