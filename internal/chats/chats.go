// Package chats stores Telegram group messages and queries them back.
package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one logged chat line.
type Message struct {
	ID          string `json:"id"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	ChannelName string `json:"channel_name,omitempty"`
	Text        string `json:"chat"` // "<username>: <text>"
	CreatedAt   int64  `json:"created_at"`
}

// Filters narrows Query. Zero values are ignored.
type Filters struct {
	ChatID   string
	Channel  string    // exact channel (group title)
	Contains string    // case-insensitive substring of the logged line
	Since    time.Time // inclusive
	Until    time.Time // inclusive
	Limit    int       // default 100
}

// Log persists chat messages in the chats table.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

func NewLog(db *sql.DB) *Log {
	return &Log{db: db, now: time.Now}
}

// FormatLine renders a message the way it is stored and forwarded.
func FormatLine(username, text string) string {
	if strings.TrimSpace(username) == "" {
		username = "unknown"
	}
	return username + ": " + text
}

// Record stores m. A message already logged for the same chat and message id
// is ignored and reported as not inserted.
func (l *Log) Record(ctx context.Context, m Message) (bool, error) {
	if l == nil || l.db == nil {
		return false, errors.New("chats: db is nil")
	}
	if m.ChatID == "" || m.MessageID == "" {
		return false, errors.New("chats: chat id and message id are required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = l.now().Unix()
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO chats (id, chat_id, message_id, channel_name, chat, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, message_id) DO NOTHING
	`, m.ID, m.ChatID, m.MessageID, m.ChannelName, m.Text, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("chats: insert %s/%s: %w", m.ChatID, m.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("chats: insert %s/%s: %w", m.ChatID, m.MessageID, err)
	}
	return n > 0, nil
}

// Thread returns every message logged for chatID, oldest first.
func (l *Log) Thread(ctx context.Context, chatID string) ([]Message, error) {
	msgs, err := l.Query(ctx, Filters{ChatID: chatID, Limit: -1})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Query returns messages matching f, most recent first. A negative Limit means no limit.
func (l *Log) Query(ctx context.Context, f Filters) ([]Message, error) {
	query := `
		SELECT id, chat_id, message_id, channel_name, chat, created_at
		FROM chats
	`
	var conditions []string
	var args []any

	if f.ChatID != "" {
		conditions = append(conditions, "chat_id = ?")
		args = append(args, f.ChatID)
	}
	if f.Channel != "" {
		conditions = append(conditions, "channel_name = ?")
		args = append(args, f.Channel)
	}
	if f.Contains != "" {
		conditions = append(conditions, "LOWER(chat) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Contains)+"%")
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, f.Until.Unix())
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	limit := f.Limit
	if limit == 0 {
		limit = 100
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chats: query: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var channel sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MessageID, &channel, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chats: scan: %w", err)
		}
		m.ChannelName = channel.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chats: iterate: %w", err)
	}
	return msgs, nil
}

// FormatTimestamp converts a unix timestamp to local "2006-01-02 15:04:05".
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}
