package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"veilink/internal/models"
)

// TransactionRepository persists ledger transactions.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Append inserts a new transaction row.
func (r *TransactionRepository) Append(ctx context.Context, tx *models.Transaction) error {
	const query = `
		INSERT INTO ledger_transactions (id, account_id, reading_id, type, amount_cents, balance_after_cents, status, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	return r.db.QueryRowContext(ctx, query,
		tx.ID,
		tx.AccountID,
		tx.ReadingID,
		tx.Type,
		tx.AmountCents,
		tx.BalanceAfterCents,
		tx.Status,
		tx.Reference,
	).Scan(&tx.CreatedAt)
}

// Finalize flips a pending transaction to its terminal status. Completed rows
// are never updated again.
func (r *TransactionRepository) Finalize(ctx context.Context, id uuid.UUID, status string, balanceAfterCents int64, reference string) error {
	const query = `
		UPDATE ledger_transactions
		SET status = $1, balance_after_cents = $2, reference = $3
		WHERE id = $4 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, status, balanceAfterCents, reference, id)
	return err
}

// ListByAccount returns latest transactions for an account.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, account_id, reading_id, type, amount_cents, balance_after_cents, status, reference, created_at
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.ReadingID,
			&tx.Type,
			&tx.AmountCents,
			&tx.BalanceAfterCents,
			&tx.Status,
			&tx.Reference,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}
