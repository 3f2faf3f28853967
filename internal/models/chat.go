package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat message kinds.
const (
	ChatMessageKindText   = "text"
	ChatMessageKindSystem = "system"
)

// Sender roles.
const (
	ChatSenderClient = "client"
	ChatSenderReader = "reader"
	ChatSenderSystem = "system"
)

// ChatMessage belongs to a chat-kind reading. Append-only.
type ChatMessage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ReadingID uuid.UUID `db:"reading_id" json:"reading_id"`
	Sender    string    `db:"sender" json:"sender"`
	Kind      string    `db:"kind" json:"kind"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
