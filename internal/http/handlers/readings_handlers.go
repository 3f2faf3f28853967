package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"veilink/internal/auth"
	"veilink/internal/models"
	"veilink/internal/service"
)

// NewReadingsRequestHandler returns POST /readings/request handler. Clients
// ask a specific reader for a session of one kind.
func NewReadingsRequestHandler(negotiator *service.Negotiator) http.HandlerFunc {
	type request struct {
		ReaderID int64  `json:"reader_id"`
		Kind     string `json:"kind"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}
		if claims.Role != models.RoleClient {
			writeError(w, http.StatusForbidden, "only clients can request readings")
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.ReaderID == 0 {
			writeError(w, http.StatusBadRequest, "reader_id is required")
			return
		}

		reading, err := negotiator.Request(r.Context(), claims.AccountID, req.ReaderID, req.Kind)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidKind), errors.Is(err, service.ErrRateNotMeterable):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, service.ErrReaderUnavailable):
				writeError(w, http.StatusConflict, "reader unavailable")
			case errors.Is(err, service.ErrInsufficientBalance):
				writeError(w, http.StatusPaymentRequired, "insufficient balance")
			default:
				writeError(w, http.StatusInternalServerError, "failed to request reading")
			}
			return
		}
		writeJSON(w, http.StatusCreated, reading)
	}
}

// NewReadingsGetHandler returns GET /readings/get handler.
func NewReadingsGetHandler(svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
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
		writeJSON(w, http.StatusOK, reading)
	}
}

// NewReadingsMeHandler returns GET /readings/me handler.
func NewReadingsMeHandler(svc *service.ReadingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 500 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		readings, err := svc.ListByClient(r.Context(), claims.AccountID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load readings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"readings": readings,
		})
	}
}

// NewReadingsActiveHandler returns GET /readings/active handler, admin only.
func NewReadingsActiveHandler(svc *service.ReadingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}
		if claims.Role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}

		readings, err := svc.ListActive(r.Context(), 200)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load active readings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"readings": readings,
		})
	}
}

// NewReadingsAcceptHandler returns POST /readings/accept handler. The reader
// picks up a requested session: the channel connects and billing starts.
func NewReadingsAcceptHandler(svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
	return commandHandler(svc, readers, func(ctx context.Context, id uuid.UUID, claims *auth.Claims) (*models.Reading, error) {
		if claims.Role != models.RoleReader {
			return nil, errReaderOnly
		}
		if _, err := svc.Connect(ctx, id); err != nil {
			return nil, err
		}
		return svc.Activate(ctx, id)
	})
}

// NewReadingsPauseHandler returns POST /readings/pause handler.
func NewReadingsPauseHandler(svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
	return commandHandler(svc, readers, func(ctx context.Context, id uuid.UUID, _ *auth.Claims) (*models.Reading, error) {
		return svc.Pause(ctx, id)
	})
}

// NewReadingsResumeHandler returns POST /readings/resume handler.
func NewReadingsResumeHandler(svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
	return commandHandler(svc, readers, func(ctx context.Context, id uuid.UUID, _ *auth.Claims) (*models.Reading, error) {
		return svc.Resume(ctx, id)
	})
}

// NewReadingsEndHandler returns POST /readings/end handler. The recorded end
// reason tracks which side hung up.
func NewReadingsEndHandler(svc *service.ReadingsService, readers service.ReaderStore) http.HandlerFunc {
	return commandHandler(svc, readers, func(ctx context.Context, id uuid.UUID, claims *auth.Claims) (*models.Reading, error) {
		reason := models.EndReasonClient
		if claims.Role == models.RoleReader {
			reason = models.EndReasonReader
		}
		return svc.End(ctx, id, reason)
	})
}

func commandHandler(svc *service.ReadingsService, readers service.ReaderStore, apply func(context.Context, uuid.UUID, *auth.Claims) (*models.Reading, error)) http.HandlerFunc {
	type request struct {
		ReadingID uuid.UUID `json:"reading_id"`
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

		if _, err := loadAuthorized(r.Context(), svc, readers, req.ReadingID, claims); err != nil {
			writeReadingError(w, err)
			return
		}

		reading, err := apply(r.Context(), req.ReadingID, claims)
		if err != nil {
			writeReadingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reading)
	}
}

var (
	errNotParticipant = errors.New("caller is not a participant of this reading")
	errReaderOnly     = errors.New("only the reader can accept a reading")
)

// loadAuthorized fetches a reading and checks the caller is its client, its
// reader, or an admin.
func loadAuthorized(ctx context.Context, svc *service.ReadingsService, readers service.ReaderStore, id uuid.UUID, claims *auth.Claims) (*models.Reading, error) {
	reading, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch claims.Role {
	case models.RoleAdmin:
		return reading, nil
	case models.RoleClient:
		if reading.ClientID == claims.AccountID {
			return reading, nil
		}
	case models.RoleReader:
		reader, err := readers.GetByID(ctx, reading.ReaderID)
		if err == nil && reader.AccountID == claims.AccountID {
			return reading, nil
		}
	}
	return nil, errNotParticipant
}

func writeReadingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotParticipant), errors.Is(err, errReaderOnly):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrReadingNotFound):
		writeError(w, http.StatusNotFound, "reading not found")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient balance")
	default:
		writeError(w, http.StatusInternalServerError, "failed to update reading")
	}
}
