package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veilink/internal/models"
)

var (
	// ErrNotChatReading means messages were sent to a phone/video reading.
	ErrNotChatReading = errors.New("chat: reading is not chat kind")
	// ErrReadingNotWritable means the reading is not in a state accepting
	// messages.
	ErrReadingNotWritable = errors.New("chat: reading not accepting messages")
)

// ChatStore persists chat messages.
type ChatStore interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	ListByReading(ctx context.Context, readingID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// ChatService appends and lists messages for chat-kind readings.
type ChatService struct {
	chats    ChatStore
	sessions *ReadingsService
	logger   *zap.Logger
}

// NewChatService builds the chat service.
func NewChatService(chats ChatStore, sessions *ReadingsService, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		chats:    chats,
		sessions: sessions,
		logger:   logger,
	}
}

// SendMessage appends a text message. The reading must be chat kind and
// currently active.
func (c *ChatService) SendMessage(ctx context.Context, readingID uuid.UUID, sender, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("chat: empty message")
	}
	if sender != models.ChatSenderClient && sender != models.ChatSenderReader {
		return nil, errors.New("chat: invalid sender")
	}

	reading, err := c.sessions.Get(ctx, readingID)
	if err != nil {
		return nil, err
	}
	if reading.Kind != models.ReadingKindChat {
		return nil, ErrNotChatReading
	}
	if reading.Status != models.ReadingStatusActive {
		return nil, ErrReadingNotWritable
	}

	msg := &models.ChatMessage{
		ID:        uuid.New(),
		ReadingID: readingID,
		Sender:    sender,
		Kind:      models.ChatMessageKindText,
		Text:      text,
	}
	if err := c.chats.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// AppendSystem records a system notice (connect, pause, low balance prompts).
// Allowed in any non-terminal state.
func (c *ChatService) AppendSystem(ctx context.Context, readingID uuid.UUID, text string) (*models.ChatMessage, error) {
	reading, err := c.sessions.Get(ctx, readingID)
	if err != nil {
		return nil, err
	}
	if reading.Terminal() {
		return nil, ErrReadingNotWritable
	}

	msg := &models.ChatMessage{
		ID:        uuid.New(),
		ReadingID: readingID,
		Sender:    models.ChatSenderSystem,
		Kind:      models.ChatMessageKindSystem,
		Text:      text,
	}
	if err := c.chats.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns the message transcript in send order.
func (c *ChatService) History(ctx context.Context, readingID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	return c.chats.ListByReading(ctx, readingID, limit)
}
