package models

import "time"

// Account roles.
const (
	RoleClient = "client"
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

// Account is an authenticated user of the platform.
type Account struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
