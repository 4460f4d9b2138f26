package coordinator

import (
	"context"
	"errors"

	"github.com/claridad-app/claridad/internal/chat"
)

var (
	// ErrEmptyMessage is returned when a message has no text after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotJoined is returned by writes issued while no channel is joined.
	ErrNotJoined = errors.New("no chat channel joined")
	// ErrNoChannel wraps channel resolution failures.
	ErrNoChannel = errors.New("no chat channel for user")
)

// ChannelResolver looks up the channel a user was assigned at onboarding.
// A nil channel with a nil error means the user has no channel.
type ChannelResolver interface {
	ResolveUserChannel(ctx context.Context, userID string) (*chat.Channel, error)
}

// MessageStore is the push side of the message store. onSnapshot receives
// the full message set of the channel, ascending by timestamp, after every
// change. onError reports a broken subscription; no further snapshots follow.
type MessageStore interface {
	SubscribeMessages(ctx context.Context, channelID string, onSnapshot func([]chat.Message), onError func(error)) (unsubscribe func(), err error)
	WriteMessage(ctx context.Context, msg chat.NewMessage) error
}

// PresenceStore reads and writes typing and online flags.
type PresenceStore interface {
	WriteTyping(ctx context.Context, channelID, userID, userName string, isTyping bool) error
	ReadTyping(ctx context.Context, channelID string) ([]chat.TypingUser, error)
	WriteOnline(ctx context.Context, channelID, userID, userName string, isOnline bool) error
	ReadOnline(ctx context.Context, channelID string) ([]chat.OnlineUser, error)
}

// Backend bundles every capability the coordinator needs.
type Backend interface {
	ChannelResolver
	MessageStore
	PresenceStore
}
