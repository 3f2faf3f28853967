package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"veilink/internal/models"
)

// ReadingRepository persists reading records.
type ReadingRepository struct {
	db *sql.DB
}

// NewReadingRepository returns repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Create inserts a reading in pending status.
func (r *ReadingRepository) Create(ctx context.Context, reading *models.Reading) error {
	const query = `
		INSERT INTO readings (id, client_id, reader_id, kind, rate_per_minute_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		reading.ID,
		reading.ClientID,
		reading.ReaderID,
		reading.Kind,
		reading.RatePerMinuteCents,
		reading.Status,
	).Scan(&reading.CreatedAt, &reading.UpdatedAt)
}

// Get returns one reading by id.
func (r *ReadingRepository) Get(ctx context.Context, id uuid.UUID) (*models.Reading, error) {
	const query = `
		SELECT id, client_id, reader_id, kind, rate_per_minute_cents, status,
		       COALESCE(started_at, 'epoch'::timestamptz), COALESCE(ended_at, 'epoch'::timestamptz),
		       billed_ms, total_cost_cents, COALESCE(end_reason, ''), COALESCE(quality, ''),
		       created_at, updated_at
		FROM readings
		WHERE id = $1
	`
	var reading models.Reading
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&reading.ID,
		&reading.ClientID,
		&reading.ReaderID,
		&reading.Kind,
		&reading.RatePerMinuteCents,
		&reading.Status,
		&reading.StartedAt,
		&reading.EndedAt,
		&reading.BilledMs,
		&reading.TotalCostCents,
		&reading.EndReason,
		&reading.Quality,
		&reading.CreatedAt,
		&reading.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

// UpdateStatus persists a lifecycle transition.
func (r *ReadingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, startedAt time.Time) error {
	const query = `
		UPDATE readings
		SET status = $1,
		    started_at = CASE WHEN $2::timestamptz > 'epoch'::timestamptz THEN $2 ELSE started_at END,
		    updated_at = NOW()
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, startedAt, id)
	return err
}

// RecordTick persists accumulated duration and cost after a successful charge.
func (r *ReadingRepository) RecordTick(ctx context.Context, id uuid.UUID, billedMs, totalCostCents int64) error {
	const query = `
		UPDATE readings
		SET billed_ms = $1, total_cost_cents = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, billedMs, totalCostCents, id)
	return err
}

// Finalize writes the terminal record for an ended or failed reading.
func (r *ReadingRepository) Finalize(ctx context.Context, reading *models.Reading) error {
	const query = `
		UPDATE readings
		SET status = $1, ended_at = $2, billed_ms = $3, total_cost_cents = $4,
		    end_reason = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		reading.Status,
		reading.EndedAt,
		reading.BilledMs,
		reading.TotalCostCents,
		reading.EndReason,
		reading.ID,
	)
	return err
}

// ListByClient returns a client's reading history.
func (r *ReadingRepository) ListByClient(ctx context.Context, clientID int64, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, client_id, reader_id, kind, rate_per_minute_cents, status,
		       COALESCE(started_at, 'epoch'::timestamptz), COALESCE(ended_at, 'epoch'::timestamptz),
		       billed_ms, total_cost_cents, COALESCE(end_reason, ''), COALESCE(quality, ''),
		       created_at, updated_at
		FROM readings
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, clientID, limit)
}

// ListActive returns readings currently in a billable or paused state.
func (r *ReadingRepository) ListActive(ctx context.Context, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, client_id, reader_id, kind, rate_per_minute_cents, status,
		       COALESCE(started_at, 'epoch'::timestamptz), COALESCE(ended_at, 'epoch'::timestamptz),
		       billed_ms, total_cost_cents, COALESCE(end_reason, ''), COALESCE(quality, ''),
		       created_at, updated_at
		FROM readings
		WHERE status IN ('connecting', 'active', 'paused')
		ORDER BY created_at DESC
		LIMIT $1
	`
	return r.list(ctx, query, limit)
}

func (r *ReadingRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var reading models.Reading
		if err := rows.Scan(
			&reading.ID,
			&reading.ClientID,
			&reading.ReaderID,
			&reading.Kind,
			&reading.RatePerMinuteCents,
			&reading.Status,
			&reading.StartedAt,
			&reading.EndedAt,
			&reading.BilledMs,
			&reading.TotalCostCents,
			&reading.EndReason,
			&reading.Quality,
			&reading.CreatedAt,
			&reading.UpdatedAt,
		); err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}
