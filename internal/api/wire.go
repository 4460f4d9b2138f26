// Package api serves the daemon's JSON and WebSocket endpoints and defines
// the wire types shared with the HTTP client.
package api

import (
	"time"

	"github.com/claridad-app/claridad/internal/chat"
)

// Message is the wire form of a chat message. Timestamps are unix millis.
type Message struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channelId"`
	UserID    string         `json:"userId"`
	UserName  string         `json:"userName"`
	Text      string         `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"type"`
	Metadata  *chat.Metadata `json:"metadata,omitempty"`
}

type Channel struct {
	ID            string   `json:"id"`
	Neighborhood  string   `json:"neighborhood"`
	Participants  []string `json:"participants"`
	LastMessage   string   `json:"lastMessage,omitempty"`
	LastMessageAt int64    `json:"lastMessageAt,omitempty"`
}

type TypingUser struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	LastUpdated int64  `json:"lastUpdated"`
}

type OnlineUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	LastSeen int64  `json:"lastSeen"`
}

// JoinRequest assigns a user to the channel of a neighborhood.
type JoinRequest struct {
	Neighborhood string `json:"neighborhood"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

type SendRequest struct {
	UserID   string         `json:"userId"`
	UserName string         `json:"userName"`
	Text     string         `json:"message"`
	Type     string         `json:"type,omitempty"`
	Metadata *chat.Metadata `json:"metadata,omitempty"`
}

// PresenceRequest sets or clears a typing or online flag.
type PresenceRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Active   bool   `json:"active"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type TypingResponse struct {
	Users []TypingUser `json:"users"`
}

type OnlineResponse struct {
	Users []OnlineUser `json:"users"`
}

type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type ChannelsResponse struct {
	Channels []Channel `json:"channels"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Frame types sent on the message stream.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// StreamFrame is one WebSocket frame of the message stream. Snapshot frames
// carry the full current message set.
type StreamFrame struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func MessageToWire(m chat.Message) Message {
	return Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		Text:      m.Text,
		Timestamp: millis(m.Timestamp),
		Type:      string(m.Type),
		Metadata:  m.Metadata,
	}
}

// MessageFromWire converts back; IsOwn is left for the session to compute.
func MessageFromWire(m Message) chat.Message {
	return chat.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		Text:      m.Text,
		Timestamp: fromMillis(m.Timestamp),
		Type:      chat.MessageType(m.Type),
		Metadata:  m.Metadata,
	}
}

func MessagesToWire(msgs []chat.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageToWire(m))
	}
	return out
}

func MessagesFromWire(msgs []Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageFromWire(m))
	}
	return out
}

func ChannelToWire(c chat.Channel) Channel {
	participants := c.ParticipantIDs
	if participants == nil {
		participants = []string{}
	}
	return Channel{
		ID:            c.ID,
		Neighborhood:  c.NeighborhoodLabel,
		Participants:  participants,
		LastMessage:   c.LastMessage,
		LastMessageAt: millis(c.LastMessageAt),
	}
}

func ChannelFromWire(c Channel) chat.Channel {
	return chat.Channel{
		ID:                c.ID,
		NeighborhoodLabel: c.Neighborhood,
		ParticipantIDs:    c.Participants,
		LastMessage:       c.LastMessage,
		LastMessageAt:     fromMillis(c.LastMessageAt),
	}
}

func TypingToWire(list []chat.TypingUser) []TypingUser {
	out := make([]TypingUser, 0, len(list))
	for _, u := range list {
		out = append(out, TypingUser{UserID: u.UserID, UserName: u.UserName, LastUpdated: millis(u.LastUpdated)})
	}
	return out
}

func TypingFromWire(list []TypingUser) []chat.TypingUser {
	out := make([]chat.TypingUser, 0, len(list))
	for _, u := range list {
		out = append(out, chat.TypingUser{UserID: u.UserID, UserName: u.UserName, LastUpdated: fromMillis(u.LastUpdated)})
	}
	return out
}

func OnlineToWire(list []chat.OnlineUser) []OnlineUser {
	out := make([]OnlineUser, 0, len(list))
	for _, u := range list {
		out = append(out, OnlineUser{UserID: u.UserID, UserName: u.UserName, LastSeen: millis(u.LastSeen)})
	}
	return out
}

func OnlineFromWire(list []OnlineUser) []chat.OnlineUser {
	out := make([]chat.OnlineUser, 0, len(list))
	for _, u := range list {
		out = append(out, chat.OnlineUser{UserID: u.UserID, UserName: u.UserName, LastSeen: fromMillis(u.LastSeen)})
	}
	return out
}
