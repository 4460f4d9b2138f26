package chat

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MessageType distinguishes ordinary chatter from panic alerts.
type MessageType string

const (
	TypeNormal MessageType = "normal"
	TypePanic  MessageType = "panic"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == TypeNormal || t == TypePanic
}

// Message is a single chat message as seen by one session.
type Message struct {
	ID        string
	ChannelID string
	UserID    string
	UserName  string
	Text      string
	Timestamp time.Time
	Type      MessageType
	// IsOwn is computed relative to the session user and never persisted.
	IsOwn    bool
	Metadata *Metadata
}

// NewMessage is the write-side shape of a message before the store assigns
// an id and timestamp.
type NewMessage struct {
	ChannelID string
	UserID    string
	UserName  string
	Text      string
	Type      MessageType
	Metadata  *Metadata
}

// Channel is the chat of one neighborhood.
type Channel struct {
	ID                string
	NeighborhoodLabel string
	ParticipantIDs    []string
	LastMessage       string
	LastMessageAt     time.Time
}

// HasParticipant reports whether userID belongs to the channel.
func (c *Channel) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// TypingUser is one entry of a channel's typing snapshot.
type TypingUser struct {
	UserID      string
	UserName    string
	LastUpdated time.Time
}

// OnlineUser is one entry of a channel's presence snapshot.
type OnlineUser struct {
	UserID   string
	UserName string
	LastSeen time.Time
}

// Identity is the current user as handed over by the auth layer.
type Identity struct {
	UserID   string
	UserName string
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// foldAccents strips combining marks after canonical decomposition.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// ChannelIDFor derives the channel id of a neighborhood, e.g.
// "Palermo Soho" -> "chat_palermo_soho".
// Accents are folded first, so "Núñez" maps to "chat_nunez".
func ChannelIDFor(neighborhood string) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(foldAccents(strings.TrimSpace(neighborhood))), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return ""
	}
	return "chat_" + slug
}
