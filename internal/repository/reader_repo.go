package repository

import (
	"context"
	"database/sql"

	"veilink/internal/models"
)

// ReaderRepository loads reader profiles and rates.
type ReaderRepository struct {
	db *sql.DB
}

// NewReaderRepository returns repository.
func NewReaderRepository(db *sql.DB) *ReaderRepository {
	return &ReaderRepository{db: db}
}

// GetByID returns a reader profile.
func (r *ReaderRepository) GetByID(ctx context.Context, id int64) (*models.Reader, error) {
	const query = `
		SELECT id, account_id, display_name, status, chat_rate_cents, phone_rate_cents, video_rate_cents, created_at, updated_at
		FROM readers
		WHERE id = $1
	`
	var reader models.Reader
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&reader.ID,
		&reader.AccountID,
		&reader.DisplayName,
		&reader.Status,
		&reader.ChatRateCents,
		&reader.PhoneRateCents,
		&reader.VideoRateCents,
		&reader.CreatedAt,
		&reader.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reader, nil
}

// SetStatus updates reader availability.
func (r *ReaderRepository) SetStatus(ctx context.Context, id int64, status string) error {
	const query = `UPDATE readers SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// ListOnline returns readers currently accepting sessions.
func (r *ReaderRepository) ListOnline(ctx context.Context, limit int) ([]models.Reader, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, account_id, display_name, status, chat_rate_cents, phone_rate_cents, video_rate_cents, created_at, updated_at
		FROM readers
		WHERE status = 'online'
		ORDER BY display_name
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readers []models.Reader
	for rows.Next() {
		var reader models.Reader
		if err := rows.Scan(
			&reader.ID,
			&reader.AccountID,
			&reader.DisplayName,
			&reader.Status,
			&reader.ChatRateCents,
			&reader.PhoneRateCents,
			&reader.VideoRateCents,
			&reader.CreatedAt,
			&reader.UpdatedAt,
		); err != nil {
			return nil, err
		}
		readers = append(readers, reader)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readers, nil
}
