package models

import "time"

// Wallet is the per-account balance aggregate. Available never goes negative;
// pending tracks deposits awaiting capture confirmation.
type Wallet struct {
	AccountID      int64     `db:"account_id" json:"account_id"`
	AvailableCents int64     `db:"available_cents" json:"available_cents"`
	PendingCents   int64     `db:"pending_cents" json:"pending_cents"`
	Currency       string    `db:"currency" json:"currency"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
