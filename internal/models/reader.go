package models

import "time"

// Reader availability statuses.
const (
	ReaderStatusOnline  = "online"
	ReaderStatusBusy    = "busy"
	ReaderStatusOffline = "offline"
)

// Reader is a provider profile with per-minute rates by reading kind.
type Reader struct {
	ID             int64     `db:"id" json:"id"`
	AccountID      int64     `db:"account_id" json:"account_id"`
	DisplayName    string    `db:"display_name" json:"display_name"`
	Status         string    `db:"status" json:"status"`
	ChatRateCents  int64     `db:"chat_rate_cents" json:"chat_rate_cents"`
	PhoneRateCents int64     `db:"phone_rate_cents" json:"phone_rate_cents"`
	VideoRateCents int64     `db:"video_rate_cents" json:"video_rate_cents"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// RateFor returns the per-minute rate for a reading kind, 0 if unknown.
func (r *Reader) RateFor(kind string) int64 {
	switch kind {
	case ReadingKindChat:
		return r.ChatRateCents
	case ReadingKindPhone:
		return r.PhoneRateCents
	case ReadingKindVideo:
		return r.VideoRateCents
	default:
		return 0
	}
}
