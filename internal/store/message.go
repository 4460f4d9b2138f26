package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
	"github.com/google/uuid"
)

const previewLen = 100

// InsertMessage stores a new message, assigning its id and timestamp, and
// bumps the channel's last message.
func (db *DB) InsertMessage(nm chat.NewMessage) (chat.Message, error) {
	if nm.Type == "" {
		nm.Type = chat.TypeNormal
	}
	var md string
	if nm.Metadata != nil {
		raw, err := json.Marshal(nm.Metadata)
		if err != nil {
			return chat.Message{}, fmt.Errorf("encode metadata: %w", err)
		}
		md = string(raw)
	}

	now := time.Now()
	msg := chat.Message{
		ID:        uuid.New().String(),
		ChannelID: nm.ChannelID,
		UserID:    nm.UserID,
		UserName:  nm.UserName,
		Text:      nm.Text,
		Timestamp: time.UnixMilli(now.UnixMilli()),
		Type:      nm.Type,
		Metadata:  nm.Metadata,
	}

	tx, err := db.Begin()
	if err != nil {
		return chat.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, channel_id, user_id, user_name, text, type, metadata, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChannelID, msg.UserID, msg.UserName, msg.Text, string(msg.Type), md,
		msg.Timestamp.UnixMilli(), now.UnixMilli()); err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE channels SET last_message = ?, last_message_at = MAX(last_message_at, ?)
		WHERE id = ?`,
		truncate(msg.Text, previewLen), msg.Timestamp.UnixMilli(), msg.ChannelID); err != nil {
		return chat.Message{}, fmt.Errorf("bump channel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return chat.Message{}, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the most recent limit messages of a channel in
// ascending order (timestamp, then insertion). limit <= 0 returns all.
func (db *DB) ListMessages(channelID string, limit int) ([]chat.Message, error) {
	q := `
		SELECT id, channel_id, user_id, user_name, text, type, metadata, timestamp FROM (
			SELECT seq, id, channel_id, user_id, user_name, text, type, metadata, timestamp
			FROM messages
			WHERE channel_id = ?
			ORDER BY timestamp DESC, seq DESC
			LIMIT ?
		) ORDER BY timestamp ASC, seq ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(q, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []chat.Message{}
	for rows.Next() {
		var (
			m   chat.Message
			typ string
			md  string
			ts  int64
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.UserName, &m.Text, &typ, &md, &ts); err != nil {
			return nil, err
		}
		m.Type = chat.MessageType(typ)
		m.Timestamp = time.UnixMilli(ts)
		if md != "" {
			var meta chat.Metadata
			if err := json.Unmarshal([]byte(md), &meta); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
			}
			m.Metadata = &meta
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
