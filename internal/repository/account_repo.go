package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"veilink/internal/models"
)

// ErrAccountNotFound represents missing account rows.
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository handles CRUD for accounts table.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository returns repository instance.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	const query = `
		INSERT INTO accounts (email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, account.Email, account.PasswordHash, account.Role).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
}

// GetByEmail fetches an account by email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM accounts
		WHERE email = $1
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email)))
	var account models.Account
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.Role, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}
