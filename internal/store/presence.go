package store

import (
	"context"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
)

// SetTyping upserts or clears a user's typing flag.
func (db *DB) SetTyping(channelID, userID, userName string, typing bool, at time.Time) error {
	if !typing {
		_, err := db.Exec(`DELETE FROM typing WHERE channel_id = ? AND user_id = ?`, channelID, userID)
		return err
	}
	_, err := db.Exec(`
		INSERT INTO typing (channel_id, user_id, user_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id, user_id) DO UPDATE SET
			user_name = excluded.user_name,
			updated_at = excluded.updated_at`,
		channelID, userID, userName, at.UnixMilli())
	return err
}

// ListTyping returns the users of a channel that flagged typing at or after since.
func (db *DB) ListTyping(channelID string, since time.Time) ([]chat.TypingUser, error) {
	rows, err := db.Query(`
		SELECT user_id, user_name, updated_at FROM typing
		WHERE channel_id = ? AND updated_at >= ?
		ORDER BY updated_at, user_id`, channelID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []chat.TypingUser{}
	for rows.Next() {
		var (
			u  chat.TypingUser
			ts int64
		)
		if err := rows.Scan(&u.UserID, &u.UserName, &ts); err != nil {
			return nil, err
		}
		u.LastUpdated = time.UnixMilli(ts)
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetOnline upserts or clears a user's presence.
func (db *DB) SetOnline(channelID, userID, userName string, online bool, at time.Time) error {
	if !online {
		_, err := db.Exec(`DELETE FROM online WHERE channel_id = ? AND user_id = ?`, channelID, userID)
		return err
	}
	_, err := db.Exec(`
		INSERT INTO online (channel_id, user_id, user_name, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id, user_id) DO UPDATE SET
			user_name = excluded.user_name,
			last_seen = excluded.last_seen`,
		channelID, userID, userName, at.UnixMilli())
	return err
}

// ListOnline returns the users of a channel seen at or after since.
func (db *DB) ListOnline(channelID string, since time.Time) ([]chat.OnlineUser, error) {
	rows, err := db.Query(`
		SELECT user_id, user_name, last_seen FROM online
		WHERE channel_id = ? AND last_seen >= ?
		ORDER BY user_name, user_id`, channelID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []chat.OnlineUser{}
	for rows.Next() {
		var (
			u  chat.OnlineUser
			ts int64
		)
		if err := rows.Scan(&u.UserID, &u.UserName, &ts); err != nil {
			return nil, err
		}
		u.LastSeen = time.UnixMilli(ts)
		out = append(out, u)
	}
	return out, rows.Err()
}

// PrunePresence deletes typing rows older than typingBefore and online rows
// older than onlineBefore.
func (db *DB) PrunePresence(typingBefore, onlineBefore time.Time) (int64, error) {
	r1, err := db.Exec(`DELETE FROM typing WHERE updated_at < ?`, typingBefore.UnixMilli())
	if err != nil {
		return 0, err
	}
	r2, err := db.Exec(`DELETE FROM online WHERE last_seen < ?`, onlineBefore.UnixMilli())
	if err != nil {
		return 0, err
	}
	n1, _ := r1.RowsAffected()
	n2, _ := r2.RowsAffected()
	return n1 + n2, nil
}

// Presence exposes the typing and online tables with read-side expiry.
type Presence struct {
	db        *DB
	typingTTL time.Duration
	onlineTTL time.Duration
	now       func() time.Time
}

// NewPresence creates a presence store over db.
func NewPresence(db *DB, typingTTL, onlineTTL time.Duration) *Presence {
	return &Presence{db: db, typingTTL: typingTTL, onlineTTL: onlineTTL, now: time.Now}
}

func (p *Presence) WriteTyping(_ context.Context, channelID, userID, userName string, isTyping bool) error {
	return p.db.SetTyping(channelID, userID, userName, isTyping, p.now())
}

func (p *Presence) ReadTyping(_ context.Context, channelID string) ([]chat.TypingUser, error) {
	return p.db.ListTyping(channelID, p.now().Add(-p.typingTTL))
}

func (p *Presence) WriteOnline(_ context.Context, channelID, userID, userName string, isOnline bool) error {
	return p.db.SetOnline(channelID, userID, userName, isOnline, p.now())
}

func (p *Presence) ReadOnline(_ context.Context, channelID string) ([]chat.OnlineUser, error) {
	return p.db.ListOnline(channelID, p.now().Add(-p.onlineTTL))
}
