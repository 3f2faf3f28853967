package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"veilink/internal/models"
)

// ChatRepository persists chat messages for chat-kind readings.
type ChatRepository struct {
	db *sql.DB
}

// NewChatRepository returns repository.
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Append inserts a message. Messages are never updated or deleted.
func (r *ChatRepository) Append(ctx context.Context, msg *models.ChatMessage) error {
	const query = `
		INSERT INTO chat_messages (id, reading_id, sender, kind, text, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	return r.db.QueryRowContext(ctx, query,
		msg.ID,
		msg.ReadingID,
		msg.Sender,
		msg.Kind,
		msg.Text,
	).Scan(&msg.CreatedAt)
}

// ListByReading returns messages in send order.
func (r *ChatRepository) ListByReading(ctx context.Context, readingID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `
		SELECT id, reading_id, sender, kind, text, created_at
		FROM chat_messages
		WHERE reading_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, readingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.ReadingID,
			&msg.Sender,
			&msg.Kind,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}
