package repository

import (
	"context"
	"database/sql"
	"errors"

	"veilink/internal/ledger"
	"veilink/internal/models"
)

// WalletRepository persists wallet aggregates.
type WalletRepository struct {
	db *sql.DB
}

// NewWalletRepository returns repository.
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Get returns the wallet row, creating an empty one on first access.
func (r *WalletRepository) Get(ctx context.Context, accountID int64) (*models.Wallet, error) {
	const query = `
		SELECT account_id, available_cents, pending_cents, currency, updated_at
		FROM wallets
		WHERE account_id = $1
	`
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&w.AccountID,
		&w.AvailableCents,
		&w.PendingCents,
		&w.Currency,
		&w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r.create(ctx, accountID)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) create(ctx context.Context, accountID int64) (*models.Wallet, error) {
	const query = `
		INSERT INTO wallets (account_id, available_cents, pending_cents, currency, updated_at)
		VALUES ($1, 0, 0, 'USD', NOW())
		ON CONFLICT (account_id) DO UPDATE SET updated_at = wallets.updated_at
		RETURNING account_id, available_cents, pending_cents, currency, updated_at
	`
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&w.AccountID,
		&w.AvailableCents,
		&w.PendingCents,
		&w.Currency,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Debit conditionally decrements available balance. Returns
// ledger.ErrInsufficientFunds when the row has less than amountCents, leaving
// it untouched.
func (r *WalletRepository) Debit(ctx context.Context, accountID, amountCents int64) (*models.Wallet, error) {
	const query = `
		UPDATE wallets
		SET available_cents = available_cents - $1, updated_at = NOW()
		WHERE account_id = $2 AND available_cents >= $1
		RETURNING account_id, available_cents, pending_cents, currency, updated_at
	`
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, query, amountCents, accountID).Scan(
		&w.AccountID,
		&w.AvailableCents,
		&w.PendingCents,
		&w.Currency,
		&w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrInsufficientFunds
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Credit increments available balance, creating the wallet row when the
// account has never been seen before.
func (r *WalletRepository) Credit(ctx context.Context, accountID, amountCents int64) (*models.Wallet, error) {
	const query = `
		INSERT INTO wallets (account_id, available_cents, pending_cents, currency, updated_at)
		VALUES ($2, $1, 0, 'USD', NOW())
		ON CONFLICT (account_id) DO UPDATE
		SET available_cents = wallets.available_cents + EXCLUDED.available_cents, updated_at = NOW()
		RETURNING account_id, available_cents, pending_cents, currency, updated_at
	`
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, query, amountCents, accountID).Scan(
		&w.AccountID,
		&w.AvailableCents,
		&w.PendingCents,
		&w.Currency,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// AdjustPending moves the pending amount by deltaCents (positive on deposit
// initiation, negative on settle or decline), creating the wallet row when the
// account has never been seen before.
func (r *WalletRepository) AdjustPending(ctx context.Context, accountID, deltaCents int64) (*models.Wallet, error) {
	const query = `
		INSERT INTO wallets (account_id, available_cents, pending_cents, currency, updated_at)
		VALUES ($2, 0, $1, 'USD', NOW())
		ON CONFLICT (account_id) DO UPDATE
		SET pending_cents = wallets.pending_cents + EXCLUDED.pending_cents, updated_at = NOW()
		RETURNING account_id, available_cents, pending_cents, currency, updated_at
	`
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, query, deltaCents, accountID).Scan(
		&w.AccountID,
		&w.AvailableCents,
		&w.PendingCents,
		&w.Currency,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
