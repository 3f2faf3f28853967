package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types.
const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeCharge     = "charge"
	TransactionTypeRefund     = "refund"
	TransactionTypeWithdrawal = "withdrawal"
)

// Transaction statuses.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is an append-only ledger entry. Completed entries are immutable.
type Transaction struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	AccountID         int64      `db:"account_id" json:"account_id"`
	ReadingID         *uuid.UUID `db:"reading_id" json:"reading_id,omitempty"`
	Type              string     `db:"type" json:"type"`
	AmountCents       int64      `db:"amount_cents" json:"amount_cents"`
	BalanceAfterCents int64      `db:"balance_after_cents" json:"balance_after_cents"`
	Status            string     `db:"status" json:"status"`
	Reference         string     `db:"reference" json:"reference,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}
