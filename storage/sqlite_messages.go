package storage

import (
	"context"
	"fmt"

	"chatapp/core"
	"chatapp/metrics"

	"go.uber.org/zap"
)

// SQLiteMessageStorage implements MessageStorage using SQLite
type SQLiteMessageStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteMessageStorage creates a new SQLite-based message storage
func NewSQLiteMessageStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteMessageStorage {
	return &SQLiteMessageStorage{sqlite: sqlite, logger: logger}
}

// CreateMessage inserts a new message
func (s *SQLiteMessageStorage) CreateMessage(ctx context.Context, msg *core.Message) error {
	if msg.IsEmpty() {
		return ErrInvalidMessage
	}

	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Text,
		msg.Image,
		formatSQLiteTime(msg.CreatedAt),
		formatSQLiteTime(msg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	metrics.MessagesSent.Inc()
	return nil
}

// GetConversation returns the messages between two users, oldest first
func (s *SQLiteMessageStorage) GetConversation(ctx context.Context, userA, userB string) ([]core.Message, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, text, image, created_at, updated_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC`,
		userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]core.Message, 0)
	for rows.Next() {
		var msg core.Message
		var createdAt, updatedAt string
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.Image, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at for message %s: %w", msg.ID, err)
		}
		if msg.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
			return nil, fmt.Errorf("invalid updated_at for message %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
