package bus

import "time"

// Event kinds published inside a process.
const (
	KindMessageWritten = "message.written"
	KindTypingChanged  = "presence.typing"
	KindOnlineChanged  = "presence.online"
	KindChannelJoined  = "channel.joined"
	KindStatusChanged  = "chat.status_changed"
	KindSnapshot       = "chat.snapshot"
	KindSendFailed     = "chat.send_failed"
)

// Event represents a domain event published on the bus. Topic scopes the
// event to one chat channel; an empty Topic reaches every subscriber of the kind.
type Event struct {
	Kind      string
	Topic     string
	Timestamp time.Time
	Payload   any
}
