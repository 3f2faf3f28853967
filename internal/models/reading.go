package models

import (
	"time"

	"github.com/google/uuid"
)

// Reading kinds.
const (
	ReadingKindChat  = "chat"
	ReadingKindPhone = "phone"
	ReadingKindVideo = "video"
)

// Reading statuses.
const (
	ReadingStatusPending    = "pending"
	ReadingStatusConnecting = "connecting"
	ReadingStatusActive     = "active"
	ReadingStatusPaused     = "paused"
	ReadingStatusEnded      = "ended"
	ReadingStatusFailed     = "failed"
)

// End reasons recorded on terminal readings.
const (
	EndReasonClient              = "client_ended"
	EndReasonReader              = "reader_ended"
	EndReasonInsufficientBalance = "insufficient_balance"
	EndReasonPaymentFailed       = "payment_failed"
	EndReasonDisconnect          = "disconnect"
)

// Reading represents a billable session between a client and a reader.
type Reading struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	ClientID           int64     `db:"client_id" json:"client_id"`
	ReaderID           int64     `db:"reader_id" json:"reader_id"`
	Kind               string    `db:"kind" json:"kind"`
	RatePerMinuteCents int64     `db:"rate_per_minute_cents" json:"rate_per_minute_cents"`
	Status             string    `db:"status" json:"status"`
	StartedAt          time.Time `db:"started_at" json:"started_at,omitempty"`
	EndedAt            time.Time `db:"ended_at" json:"ended_at,omitempty"`
	BilledMs           int64     `db:"billed_ms" json:"billed_ms"`
	TotalCostCents     int64     `db:"total_cost_cents" json:"total_cost_cents"`
	EndReason          string    `db:"end_reason" json:"end_reason,omitempty"`
	Quality            string    `db:"quality" json:"quality,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the reading can no longer transition.
func (r *Reading) Terminal() bool {
	return r.Status == ReadingStatusEnded || r.Status == ReadingStatusFailed
}

// BilledMinutes returns chargeable minutes accumulated so far.
func (r *Reading) BilledMinutes() float64 {
	return float64(r.BilledMs) / 60000.0
}
