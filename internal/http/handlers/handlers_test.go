package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"veilink/internal/auth"
	"veilink/internal/events"
	"veilink/internal/http/middleware"
	"veilink/internal/ledger"
	"veilink/internal/models"
	"veilink/internal/repository"
	"veilink/internal/service"
)

type memAccounts struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: make(map[string]*models.Account)}
}

func (m *memAccounts) Create(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	account.ID = m.nextID
	cp := *account
	m.rows[account.Email] = &cp
	return nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[email]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *row
	return &cp, nil
}

type memWallets struct {
	mu   sync.Mutex
	rows map[int64]*models.Wallet
}

func newMemWallets() *memWallets {
	return &memWallets{rows: make(map[int64]*models.Wallet)}
}

func (m *memWallets) get(accountID int64) *models.Wallet {
	row, ok := m.rows[accountID]
	if !ok {
		row = &models.Wallet{AccountID: accountID, Currency: "USD"}
		m.rows[accountID] = row
	}
	return row
}

func (m *memWallets) Get(_ context.Context, accountID int64) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.get(accountID)
	return &cp, nil
}

func (m *memWallets) Debit(_ context.Context, accountID, amountCents int64) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.get(accountID)
	if row.AvailableCents < amountCents {
		return nil, ledger.ErrInsufficientFunds
	}
	row.AvailableCents -= amountCents
	cp := *row
	return &cp, nil
}

func (m *memWallets) Credit(_ context.Context, accountID, amountCents int64) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.get(accountID)
	row.AvailableCents += amountCents
	cp := *row
	return &cp, nil
}

func (m *memWallets) AdjustPending(_ context.Context, accountID, deltaCents int64) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.get(accountID)
	row.PendingCents += deltaCents
	cp := *row
	return &cp, nil
}

type memTxs struct {
	mu   sync.Mutex
	rows []*models.Transaction
}

func (m *memTxs) Append(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memTxs) Finalize(_ context.Context, id uuid.UUID, status string, balanceAfterCents int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			row.Status = status
			row.BalanceAfterCents = balanceAfterCents
			row.Reference = reference
			return nil
		}
	}
	return nil
}

func (m *memTxs) ListByAccount(_ context.Context, accountID int64, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, row := range m.rows {
		if row.AccountID == accountID {
			out = append(out, *row)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type okCapture struct{}

func (okCapture) Capture(context.Context, int64, string) (string, error) {
	return "cap_test", nil
}

func newAuthService() (*auth.Service, *auth.TokenService) {
	tokens := auth.NewTokenService("test-secret", time.Hour)
	return auth.NewService(newMemAccounts(), auth.NewBcryptHasher(4), tokens, nil), tokens
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if claims != nil {
		req = req.WithContext(middleware.ContextWithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestSignupAndLogin(t *testing.T) {
	svc, tokens := newAuthService()

	rec := doJSON(t, NewSignupHandler(svc), http.MethodPost, "/auth/signup", map[string]string{
		"email":    "mira@example.com",
		"password": "crystal-ball",
		"role":     "client",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, NewSignupHandler(svc), http.MethodPost, "/auth/signup", map[string]string{
		"email":    "mira@example.com",
		"password": "crystal-ball",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, NewLoginHandler(svc), http.MethodPost, "/auth/login", map[string]string{
		"email":    "mira@example.com",
		"password": "crystal-ball",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	claims, err := tokens.ValidateToken(loginResp.Token)
	require.NoError(t, err)
	require.Equal(t, models.RoleClient, claims.Role)

	rec = doJSON(t, NewLoginHandler(svc), http.MethodPost, "/auth/login", map[string]string{
		"email":    "mira@example.com",
		"password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupRejectsUnknownRole(t *testing.T) {
	svc, _ := newAuthService()
	rec := doJSON(t, NewSignupHandler(svc), http.MethodPost, "/auth/signup", map[string]string{
		"email":    "x@example.com",
		"password": "pw",
		"role":     "oracle",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletDepositAndBalance(t *testing.T) {
	led := ledger.NewService(newMemWallets(), &memTxs{}, okCapture{}, nil)
	claims := &auth.Claims{AccountID: 7, Role: models.RoleClient}

	rec := doJSON(t, NewWalletDepositHandler(led), http.MethodPost, "/wallet/me/deposit", map[string]any{
		"amount_cents": 2500,
		"method_ref":   "pm_test",
	}, claims)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, NewWalletMeHandler(led), http.MethodGet, "/wallet/me", nil, claims)
	require.Equal(t, http.StatusOK, rec.Code)
	var wallet models.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	require.EqualValues(t, 2500, wallet.AvailableCents)

	rec = doJSON(t, NewWalletTransactionsHandler(led), http.MethodGet, "/wallet/me/transactions", nil, claims)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, NewWalletDepositHandler(led), http.MethodPost, "/wallet/me/deposit", map[string]any{
		"amount_cents": -5,
	}, claims)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, NewWalletMeHandler(led), http.MethodGet, "/wallet/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

type staticReaders struct {
	rows map[int64]*models.Reader
}

func (s staticReaders) GetByID(_ context.Context, id int64) (*models.Reader, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, errors.New("reader not found")
	}
	cp := *row
	return &cp, nil
}

type memReadingRows struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Reading
}

func newMemReadingRows() *memReadingRows {
	return &memReadingRows{rows: make(map[uuid.UUID]*models.Reading)}
}

func (m *memReadingRows) Create(_ context.Context, reading *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reading
	m.rows[reading.ID] = &cp
	return nil
}

func (m *memReadingRows) Get(_ context.Context, id uuid.UUID) (*models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, service.ErrReadingNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memReadingRows) UpdateStatus(_ context.Context, id uuid.UUID, status string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.Status = status
		if !startedAt.IsZero() {
			row.StartedAt = startedAt
		}
	}
	return nil
}

func (m *memReadingRows) RecordTick(_ context.Context, id uuid.UUID, billedMs, totalCostCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.BilledMs = billedMs
		row.TotalCostCents = totalCostCents
	}
	return nil
}

func (m *memReadingRows) Finalize(_ context.Context, reading *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reading
	m.rows[reading.ID] = &cp
	return nil
}

func (m *memReadingRows) ListByClient(_ context.Context, clientID int64, _ int) ([]models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reading
	for _, row := range m.rows {
		if row.ClientID == clientID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memReadingRows) ListActive(_ context.Context, _ int) ([]models.Reading, error) {
	return nil, nil
}

func newReadingsFixture(t *testing.T) (*service.ReadingsService, *service.Negotiator, staticReaders, *ledger.Service) {
	t.Helper()
	led := ledger.NewService(newMemWallets(), &memTxs{}, okCapture{}, nil)
	bus := events.NewBus(nil)
	rows := newMemReadingRows()
	svc := service.NewReadingsService(rows, led, bus, nil, time.Minute, nil)
	t.Cleanup(svc.Shutdown)

	readers := staticReaders{rows: map[int64]*models.Reader{
		1: {
			ID:            1,
			AccountID:     900,
			DisplayName:   "Selene",
			Status:        models.ReaderStatusOnline,
			ChatRateCents: 300,
		},
	}}
	neg := service.NewNegotiator(rows, readers, led, svc, nil)
	return svc, neg, readers, led
}

func TestReadingsRequestHandler(t *testing.T) {
	_, neg, _, led := newReadingsFixture(t)
	handler := NewReadingsRequestHandler(neg)
	client := &auth.Claims{AccountID: 7, Role: models.RoleClient}

	// No funds yet.
	rec := doJSON(t, handler, http.MethodPost, "/readings/request", map[string]any{
		"reader_id": 1, "kind": "chat",
	}, client)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	_, err := led.Deposit(context.Background(), 7, 10000, "pm_test")
	require.NoError(t, err)

	rec = doJSON(t, handler, http.MethodPost, "/readings/request", map[string]any{
		"reader_id": 1, "kind": "chat",
	}, client)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reading models.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
	require.Equal(t, models.ReadingStatusPending, reading.Status)
	require.EqualValues(t, 300, reading.RatePerMinuteCents)

	rec = doJSON(t, handler, http.MethodPost, "/readings/request", map[string]any{
		"reader_id": 1, "kind": "tarot",
	}, client)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Readers cannot open readings for themselves.
	rec = doJSON(t, handler, http.MethodPost, "/readings/request", map[string]any{
		"reader_id": 1, "kind": "chat",
	}, &auth.Claims{AccountID: 900, Role: models.RoleReader})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReadingsAcceptHandler(t *testing.T) {
	svc, neg, readers, led := newReadingsFixture(t)
	_, err := led.Deposit(context.Background(), 7, 10000, "pm_test")
	require.NoError(t, err)

	reading, err := neg.Request(context.Background(), 7, 1, models.ReadingKindChat)
	require.NoError(t, err)

	accept := NewReadingsAcceptHandler(svc, readers)
	body := map[string]any{"reading_id": reading.ID}

	// The requesting client cannot start billing on their own.
	rec := doJSON(t, accept, http.MethodPost, "/readings/accept", body, &auth.Claims{AccountID: 7, Role: models.RoleClient})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Neither can a reader the session was not requested from.
	rec = doJSON(t, accept, http.MethodPost, "/readings/accept", body, &auth.Claims{AccountID: 555, Role: models.RoleReader})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, accept, http.MethodPost, "/readings/accept", body, &auth.Claims{AccountID: 900, Role: models.RoleReader})
	require.Equal(t, http.StatusOK, rec.Code)

	var accepted models.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.Equal(t, models.ReadingStatusActive, accepted.Status)

	// Accepting twice is a transition conflict.
	rec = doJSON(t, accept, http.MethodPost, "/readings/accept", body, &auth.Claims{AccountID: 900, Role: models.RoleReader})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestReadingCommandAuthorization(t *testing.T) {
	svc, neg, readers, led := newReadingsFixture(t)
	_, err := led.Deposit(context.Background(), 7, 10000, "pm_test")
	require.NoError(t, err)

	reading, err := neg.Request(context.Background(), 7, 1, models.ReadingKindChat)
	require.NoError(t, err)
	_, err = svc.Connect(context.Background(), reading.ID)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), reading.ID)
	require.NoError(t, err)

	pause := NewReadingsPauseHandler(svc, readers)
	body := map[string]any{"reading_id": reading.ID}

	// A stranger cannot drive the session.
	rec := doJSON(t, pause, http.MethodPost, "/readings/pause", body, &auth.Claims{AccountID: 42, Role: models.RoleClient})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The reading's reader can.
	rec = doJSON(t, pause, http.MethodPost, "/readings/pause", body, &auth.Claims{AccountID: 900, Role: models.RoleReader})
	require.Equal(t, http.StatusOK, rec.Code)

	resume := NewReadingsResumeHandler(svc, readers)
	rec = doJSON(t, resume, http.MethodPost, "/readings/resume", body, &auth.Claims{AccountID: 7, Role: models.RoleClient})
	require.Equal(t, http.StatusOK, rec.Code)

	end := NewReadingsEndHandler(svc, readers)
	rec = doJSON(t, end, http.MethodPost, "/readings/end", body, &auth.Claims{AccountID: 900, Role: models.RoleReader})
	require.Equal(t, http.StatusOK, rec.Code)

	var ended models.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ended))
	require.Equal(t, models.EndReasonReader, ended.EndReason)

	// Commands against an ended reading conflict.
	rec = doJSON(t, pause, http.MethodPost, "/readings/pause", body, &auth.Claims{AccountID: 7, Role: models.RoleClient})
	require.Equal(t, http.StatusConflict, rec.Code)
}
