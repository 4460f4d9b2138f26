package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
)

// ErrInvalidNeighborhood is returned when a neighborhood label has no usable characters.
var ErrInvalidNeighborhood = errors.New("invalid neighborhood")

// JoinChannel assigns a user to the channel of a neighborhood, creating the
// channel on first reference. Joining again is a no-op apart from updating
// the user name; joining another neighborhood moves the user.
func (db *DB) JoinChannel(neighborhood, userID, userName string) (*chat.Channel, error) {
	channelID := chat.ChannelIDFor(neighborhood)
	if channelID == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNeighborhood, neighborhood)
	}
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO channels (id, neighborhood, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		channelID, neighborhood, now); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO participants (channel_id, user_id, user_name, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id, user_id) DO UPDATE SET user_name = excluded.user_name`,
		channelID, userID, userName, now); err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO user_channels (user_id, channel_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET channel_id = excluded.channel_id, updated_at = excluded.updated_at`,
		userID, channelID, now); err != nil {
		return nil, fmt.Errorf("assign user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit join: %w", err)
	}
	return db.GetChannel(channelID)
}

// GetChannel returns a channel with its participants, or nil if unknown.
func (db *DB) GetChannel(id string) (*chat.Channel, error) {
	var (
		c      chat.Channel
		lastAt int64
	)
	err := db.QueryRow(`
		SELECT id, neighborhood, last_message, last_message_at
		FROM channels WHERE id = ?`, id).
		Scan(&c.ID, &c.NeighborhoodLabel, &c.LastMessage, &lastAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastAt > 0 {
		c.LastMessageAt = time.UnixMilli(lastAt)
	}

	rows, err := db.Query(`SELECT user_id FROM participants WHERE channel_id = ? ORDER BY joined_at, user_id`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		c.ParticipantIDs = append(c.ParticipantIDs, uid)
	}
	return &c, rows.Err()
}

// UserChannel returns the channel a user is assigned to, or nil.
func (db *DB) UserChannel(userID string) (*chat.Channel, error) {
	var channelID string
	err := db.QueryRow(`SELECT channel_id FROM user_channels WHERE user_id = ?`, userID).Scan(&channelID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.GetChannel(channelID)
}

// ListChannels returns every channel ordered by latest activity.
func (db *DB) ListChannels() ([]chat.Channel, error) {
	rows, err := db.Query(`
		SELECT id, neighborhood, last_message, last_message_at
		FROM channels ORDER BY last_message_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []chat.Channel
	for rows.Next() {
		var (
			c      chat.Channel
			lastAt int64
		)
		if err := rows.Scan(&c.ID, &c.NeighborhoodLabel, &c.LastMessage, &lastAt); err != nil {
			return nil, err
		}
		if lastAt > 0 {
			c.LastMessageAt = time.UnixMilli(lastAt)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
