package store

import (
	"strings"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
)

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message chat.Message
	Snippet string
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchMessages finds messages of a channel whose text contains query,
// newest first. Matching is case-insensitive for ASCII.
func (db *DB) SearchMessages(channelID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, user_id, user_name, text, type, timestamp
		FROM messages
		WHERE channel_id = ? AND text LIKE ? ESCAPE '\'
		ORDER BY timestamp DESC, seq DESC
		LIMIT ?`, channelID, "%"+likeEscaper.Replace(query)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var (
			m   chat.Message
			typ string
			ts  int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.UserName, &m.Text, &typ, &ts); err != nil {
			return nil, err
		}
		m.ChannelID = channelID
		m.Type = chat.MessageType(typ)
		m.Timestamp = time.UnixMilli(ts)
		results = append(results, SearchResult{Message: m, Snippet: snippet(m.Text, query, 32)})
	}
	return results, rows.Err()
}

// snippet cuts text around the first match of query, marking it with << >>.
func snippet(text, query string, radius int) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if idx < 0 || query == "" {
		return truncate(text, 2*radius)
	}
	start := max(idx-radius, 0)
	end := min(idx+len(query)+radius, len(text))
	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(text[start:idx])
	b.WriteString("<<")
	b.WriteString(text[idx : idx+len(query)])
	b.WriteString(">>")
	b.WriteString(text[idx+len(query) : end])
	if end < len(text) {
		b.WriteString("...")
	}
	return b.String()
}
