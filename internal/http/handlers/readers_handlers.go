package handlers

import (
	"context"
	"net/http"
	"strconv"

	"veilink/internal/models"
)

// ReaderLister exposes the public reader directory.
type ReaderLister interface {
	ListOnline(ctx context.Context, limit int) ([]models.Reader, error)
}

// NewReadersOnlineHandler returns GET /readers/online handler.
func NewReadersOnlineHandler(readers ReaderLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 500 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		online, err := readers.ListOnline(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load readers")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"readers": online,
		})
	}
}

// NewHealthHandler returns GET /health handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
