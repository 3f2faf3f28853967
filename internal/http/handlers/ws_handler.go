package handlers

import (
	"net/http"

	"veilink/internal/models"
	"veilink/internal/service"
	"veilink/internal/ws"
)

// NewReadingsWSHandler returns GET /readings/ws handler. It authorizes the
// caller as a participant of the reading before upgrading.
func NewReadingsWSHandler(wsServer *ws.Server, svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}
		id, ok := readingIDParam(w, r)
		if !ok {
			return
		}

		reading, err := loadAuthorized(r.Context(), svc, readers, id, claims)
		if err != nil {
			writeReadingError(w, err)
			return
		}
		if reading.Terminal() {
			writeError(w, http.StatusGone, "reading already ended")
			return
		}

		sender := models.ChatSenderClient
		if claims.Role == models.RoleReader {
			sender = models.ChatSenderReader
		}
		wsServer.Serve(w, r, id, sender)
	}
}
