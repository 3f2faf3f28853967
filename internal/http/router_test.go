package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"veilink/internal/auth"
	"veilink/internal/http/middleware"
)

func TestRouterMethodGuard(t *testing.T) {
	router := NewRouter(Routes{
		Health: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestRouterRegistersReadingsAccept(t *testing.T) {
	router := NewRouter(Routes{
		ReadingsAccept: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/readings/accept", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readings/accept", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterProtectsWalletRoutes(t *testing.T) {
	tokens := auth.NewTokenService("router-secret", time.Hour)
	router := NewRouter(Routes{
		WalletMe: func(w http.ResponseWriter, r *http.Request) {
			claims, ok := middleware.ClaimsFromContext(r.Context())
			require.True(t, ok)
			require.EqualValues(t, 7, claims.AccountID)
			w.WriteHeader(http.StatusOK)
		},
	}, middleware.Auth(tokens))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallet/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := tokens.GenerateToken(7, "client")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/wallet/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// WebSocket clients pass the token as a query parameter.
	req = httptest.NewRequest(http.MethodGet, "/wallet/me?token="+token, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/wallet/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
