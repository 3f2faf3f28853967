package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"veilink/internal/events"
	"veilink/internal/ledger"
	"veilink/internal/models"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// ---------------------------------------------------------------------------
// In-memory fakes, tested against the real service logic.
// ---------------------------------------------------------------------------

type memReadings struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*models.Reading
	finalized map[uuid.UUID]int
}

func newMemReadings() *memReadings {
	return &memReadings{
		rows:      make(map[uuid.UUID]*models.Reading),
		finalized: make(map[uuid.UUID]int),
	}
}

func (m *memReadings) Create(_ context.Context, reading *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reading
	m.rows[reading.ID] = &cp
	return nil
}

func (m *memReadings) Get(_ context.Context, id uuid.UUID) (*models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("reading %s not found", id)
	}
	cp := *row
	return &cp, nil
}

func (m *memReadings) UpdateStatus(_ context.Context, id uuid.UUID, status string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("reading %s not found", id)
	}
	row.Status = status
	if !startedAt.IsZero() {
		row.StartedAt = startedAt
	}
	return nil
}

func (m *memReadings) RecordTick(_ context.Context, id uuid.UUID, billedMs, totalCostCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("reading %s not found", id)
	}
	row.BilledMs = billedMs
	row.TotalCostCents = totalCostCents
	return nil
}

func (m *memReadings) Finalize(_ context.Context, reading *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reading
	m.rows[reading.ID] = &cp
	m.finalized[reading.ID]++
	return nil
}

func (m *memReadings) ListByClient(_ context.Context, clientID int64, _ int) ([]models.Reading, error) {
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

func (m *memReadings) ListActive(_ context.Context, _ int) ([]models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reading
	for _, row := range m.rows {
		switch row.Status {
		case models.ReadingStatusConnecting, models.ReadingStatusActive, models.ReadingStatusPaused:
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memReadings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memReadings) finalizeCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized[id]
}

type fakeLedger struct {
	mu        sync.Mutex
	available map[int64]int64
	failNext  int
	charges   int
}

func newFakeLedger(accounts map[int64]int64) *fakeLedger {
	return &fakeLedger{available: accounts}
}

func (f *fakeLedger) Balance(_ context.Context, accountID int64) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.Wallet{AccountID: accountID, AvailableCents: f.available[accountID], Currency: "USD"}, nil
}

func (f *fakeLedger) Charge(_ context.Context, accountID, amountCents int64, _ uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, ledger.ErrPaymentFailed
	}
	if f.available[accountID] < amountCents {
		return nil, ledger.ErrInsufficientFunds
	}
	f.available[accountID] -= amountCents
	f.charges++
	return &models.Wallet{AccountID: accountID, AvailableCents: f.available[accountID], Currency: "USD"}, nil
}

func (f *fakeLedger) balance(accountID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available[accountID]
}

func (f *fakeLedger) setFailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

type memReaders struct {
	mu   sync.Mutex
	rows map[int64]*models.Reader
}

func newMemReaders(readers ...*models.Reader) *memReaders {
	m := &memReaders{rows: make(map[int64]*models.Reader)}
	for _, r := range readers {
		cp := *r
		m.rows[r.ID] = &cp
	}
	return m
}

func (m *memReaders) GetByID(_ context.Context, id int64) (*models.Reader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("reader %d not found", id)
	}
	cp := *row
	return &cp, nil
}

type memChats struct {
	mu   sync.Mutex
	rows []*models.ChatMessage
}

func (m *memChats) Append(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memChats) ListByReading(_ context.Context, readingID uuid.UUID, _ int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatMessage
	for _, row := range m.rows {
		if row.ReadingID == readingID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *eventRecorder) countKind(kind string) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestBus() *events.Bus {
	return events.NewBus(nil)
}

// newTestStack wires a service over fakes with a fast tick.
func newTestStack(t *testing.T, balances map[int64]int64, tick time.Duration) (*ReadingsService, *Negotiator, *memReadings, *fakeLedger, *eventRecorder) {
	t.Helper()
	readings := newMemReadings()
	led := newFakeLedger(balances)
	bus := events.NewBus(nil)
	rec := &eventRecorder{}
	bus.Subscribe(rec.handle)

	svc := NewReadingsService(readings, led, bus, nil, tick, nil)
	t.Cleanup(svc.Shutdown)

	readers := newMemReaders(&models.Reader{
		ID:             1,
		AccountID:      100,
		DisplayName:    "Selene",
		Status:         models.ReaderStatusOnline,
		ChatRateCents:  60000,
		PhoneRateCents: 120000,
		VideoRateCents: 180000,
	})
	neg := NewNegotiator(readings, readers, led, svc, nil)
	return svc, neg, readings, led, rec
}
