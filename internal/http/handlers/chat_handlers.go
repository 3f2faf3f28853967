package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"veilink/internal/models"
	"veilink/internal/service"
)

// NewChatMessageHandler returns POST /readings/chat/message handler.
func NewChatMessageHandler(chat *service.ChatService, svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
	type request struct {
		ReadingID uuid.UUID `json:"reading_id"`
		Text      string    `json:"text"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReadingID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "reading_id is required")
			return
		}
		id := req.ReadingID

		if _, err := loadAuthorized(r.Context(), svc, readers, id, claims); err != nil {
			writeReadingError(w, err)
			return
		}

		sender := models.ChatSenderClient
		if claims.Role == models.RoleReader {
			sender = models.ChatSenderReader
		}

		msg, err := chat.SendMessage(r.Context(), id, sender, req.Text)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotChatReading):
				writeError(w, http.StatusBadRequest, "reading is not chat kind")
			case errors.Is(err, service.ErrReadingNotWritable):
				writeError(w, http.StatusConflict, "reading not accepting messages")
			default:
				writeError(w, http.StatusInternalServerError, "failed to send message")
			}
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// NewChatHistoryHandler returns GET /readings/chat/history handler.
func NewChatHistoryHandler(chat *service.ChatService, svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}
		id, ok := readingIDParam(w, r)
		if !ok {
			return
		}

		if _, err := loadAuthorized(r.Context(), svc, readers, id, claims); err != nil {
			writeReadingError(w, err)
			return
		}

		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 1000 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		messages, err := chat.History(r.Context(), id, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load messages")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages": messages,
		})
	}
}
