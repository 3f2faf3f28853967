package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veilink/internal/models"
)

// Sessions is the slice of the readings service the gateway drives.
type Sessions interface {
	Connect(ctx context.Context, id uuid.UUID) (*models.Reading, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.Reading, error)
	Pause(ctx context.Context, id uuid.UUID) (*models.Reading, error)
	Resume(ctx context.Context, id uuid.UUID) (*models.Reading, error)
	End(ctx context.Context, id uuid.UUID, reason string) (*models.Reading, error)
}

// Chats appends participant messages to chat readings.
type Chats interface {
	SendMessage(ctx context.Context, readingID uuid.UUID, sender, text string) (*models.ChatMessage, error)
}

type command struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

type ackFrame struct {
	Type    string              `json:"type"`
	Action  string              `json:"action"`
	Reading *models.Reading     `json:"reading,omitempty"`
	Message *models.ChatMessage `json:"message,omitempty"`
}

type errorFrame struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Error  string `json:"error"`
}

// Gateway translates inbound frames into service calls.
type Gateway struct {
	sessions Sessions
	chats    Chats
	logger   *zap.Logger
}

// NewGateway builds the command gateway.
func NewGateway(sessions Sessions, chats Chats, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{sessions: sessions, chats: chats, logger: logger}
}

// Handle decodes one command frame and applies it. The returned frame, if any,
// is sent back to the caller only; lifecycle outcomes reach both participants
// through the event bus.
func (g *Gateway) Handle(ctx context.Context, readingID uuid.UUID, sender string, raw []byte) ([]byte, error) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return errFrame(cmd.Action, "malformed command"), nil
	}

	switch cmd.Action {
	case "accept":
		if sender != models.ChatSenderReader {
			return errFrame(cmd.Action, "only the reader can accept"), nil
		}
		if _, err := g.sessions.Connect(ctx, readingID); err != nil {
			return errFrame(cmd.Action, err.Error()), nil
		}
		reading, err := g.sessions.Activate(ctx, readingID)
		if err != nil {
			return errFrame(cmd.Action, err.Error()), nil
		}
		return ack(cmd.Action, reading, nil)
	case "pause":
		reading, err := g.sessions.Pause(ctx, readingID)
		if err != nil {
			return errFrame(cmd.Action, err.Error()), nil
		}
		return ack(cmd.Action, reading, nil)
	case "resume":
		reading, err := g.sessions.Resume(ctx, readingID)
		if err != nil {
			return errFrame(cmd.Action, err.Error()), nil
		}
		return ack(cmd.Action, reading, nil)
	case "end":
		reading, err := g.sessions.End(ctx, readingID, endReasonFor(sender))
		if err != nil {
			return errFrame(cmd.Action, err.Error()), nil
		}
		return ack(cmd.Action, reading, nil)
	case "message":
		msg, err := g.chats.SendMessage(ctx, readingID, sender, cmd.Text)
		if err != nil {
			return errFrame(cmd.Action, err.Error()), nil
		}
		return ack(cmd.Action, nil, msg)
	default:
		return errFrame(cmd.Action, fmt.Sprintf("unknown action %q", cmd.Action)), nil
	}
}

func endReasonFor(sender string) string {
	if sender == models.ChatSenderReader {
		return models.EndReasonReader
	}
	return models.EndReasonClient
}

func ack(action string, reading *models.Reading, msg *models.ChatMessage) ([]byte, error) {
	return json.Marshal(ackFrame{Type: "ack", Action: action, Reading: reading, Message: msg})
}

func errFrame(action, detail string) []byte {
	frame, err := json.Marshal(errorFrame{Type: "error", Action: action, Error: detail})
	if err != nil {
		return []byte(`{"type":"error","error":"internal"}`)
	}
	return frame
}
