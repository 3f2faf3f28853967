package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veilink/internal/events"
	"veilink/internal/metrics"
	"veilink/internal/models"
	"veilink/internal/redisstore"
)

var (
	// ErrInsufficientBalance means the client cannot afford one chargeable
	// interval. Returned at negotiation or resume time; nothing is mutated.
	ErrInsufficientBalance = errors.New("readings: insufficient balance")
	// ErrInvalidTransition is returned for a lifecycle command the current
	// status does not allow.
	ErrInvalidTransition = errors.New("readings: invalid status transition")
	// ErrReadingNotFound means the reading id is unknown.
	ErrReadingNotFound = errors.New("readings: not found")
)

// ReadingStore persists reading records.
type ReadingStore interface {
	Create(ctx context.Context, reading *models.Reading) error
	Get(ctx context.Context, id uuid.UUID) (*models.Reading, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, startedAt time.Time) error
	RecordTick(ctx context.Context, id uuid.UUID, billedMs, totalCostCents int64) error
	Finalize(ctx context.Context, reading *models.Reading) error
	ListByClient(ctx context.Context, clientID int64, limit int) ([]models.Reading, error)
	ListActive(ctx context.Context, limit int) ([]models.Reading, error)
}

// Ledger is the wallet contract the session layer depends on.
type Ledger interface {
	Balance(ctx context.Context, accountID int64) (*models.Wallet, error)
	Charge(ctx context.Context, accountID, amountCents int64, readingID uuid.UUID) (*models.Wallet, error)
}

// ActiveCache mirrors live reading snapshots for the presentation layer.
type ActiveCache interface {
	Save(ctx context.Context, reading redisstore.ActiveReading) error
	Delete(ctx context.Context, readingID uuid.UUID) error
}

// readingState is the single in-process owner of one reading's lifecycle.
// mu guards the reading fields and transitions; stop belongs to the current
// metering loop, nil when no loop is running.
type readingState struct {
	mu             sync.Mutex
	reading        *models.Reading
	stop           chan struct{}
	transientRetry bool
}

// ReadingsService owns reading lifecycles: transitions, the metering loops,
// and event emission. Exactly one metering loop may exist per reading.
type ReadingsService struct {
	mu   sync.Mutex
	live map[uuid.UUID]*readingState

	readings ReadingStore
	ledger   Ledger
	bus      *events.Bus
	cache    ActiveCache
	tick     time.Duration
	logger   *zap.Logger
}

// NewReadingsService builds the service. cache may be nil.
func NewReadingsService(readings ReadingStore, ledger Ledger, bus *events.Bus, cache ActiveCache, tick time.Duration, logger *zap.Logger) *ReadingsService {
	if tick <= 0 {
		tick = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadingsService{
		live:     make(map[uuid.UUID]*readingState),
		readings: readings,
		ledger:   ledger,
		bus:      bus,
		cache:    cache,
		tick:     tick,
		logger:   logger,
	}
}

// TickInterval returns the chargeable interval.
func (s *ReadingsService) TickInterval() time.Duration {
	return s.tick
}

// tickChargeCents is the amount deducted per interval: rate x interval/60s.
func tickChargeCents(rateCents int64, tick time.Duration) int64 {
	return rateCents * tick.Milliseconds() / 60000
}

func canTransition(from, to string) bool {
	switch to {
	case models.ReadingStatusConnecting:
		return from == models.ReadingStatusPending
	case models.ReadingStatusActive:
		return from == models.ReadingStatusConnecting || from == models.ReadingStatusPaused
	case models.ReadingStatusPaused:
		return from == models.ReadingStatusActive
	case models.ReadingStatusEnded:
		return from != models.ReadingStatusEnded && from != models.ReadingStatusFailed
	case models.ReadingStatusFailed:
		return from == models.ReadingStatusConnecting || from == models.ReadingStatusActive
	default:
		return false
	}
}

// Track registers a freshly negotiated reading as live state. The negotiator
// calls this right after Create.
func (s *ReadingsService) Track(reading *models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[reading.ID]; !ok {
		s.live[reading.ID] = &readingState{reading: reading}
	}
}

func (s *ReadingsService) state(ctx context.Context, id uuid.UUID) (*readingState, error) {
	s.mu.Lock()
	if st, ok := s.live[id]; ok {
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	reading, err := s.readings.Get(ctx, id)
	if err != nil {
		return nil, ErrReadingNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.live[id]; ok {
		return st, nil
	}
	st := &readingState{reading: reading}
	s.live[id] = st
	return st, nil
}

// Get returns a copy of the current reading record.
func (s *ReadingsService) Get(ctx context.Context, id uuid.UUID) (*models.Reading, error) {
	st, err := s.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := *st.reading
	return &cp, nil
}

// Connect moves a pending reading to connecting once negotiation succeeded.
func (s *ReadingsService) Connect(ctx context.Context, id uuid.UUID) (*models.Reading, error) {
	st, err := s.state(ctx, id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !canTransition(st.reading.Status, models.ReadingStatusConnecting) {
		return nil, ErrInvalidTransition
	}
	st.reading.Status = models.ReadingStatusConnecting
	if err := s.readings.UpdateStatus(ctx, id, st.reading.Status, time.Time{}); err != nil {
		return nil, err
	}
	cp := *st.reading
	return &cp, nil
}

// Activate moves a connecting reading to active on reader acceptance and
// starts the metering loop.
func (s *ReadingsService) Activate(ctx context.Context, id uuid.UUID) (*models.Reading, error) {
	st, err := s.state(ctx, id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.reading.Status != models.ReadingStatusConnecting {
		return nil, ErrInvalidTransition
	}
	now := time.Now().UTC()
	st.reading.Status = models.ReadingStatusActive
	if st.reading.StartedAt.IsZero() {
		st.reading.StartedAt = now
	}
	if err := s.readings.UpdateStatus(ctx, id, st.reading.Status, st.reading.StartedAt); err != nil {
		return nil, err
	}

	s.startMeterLocked(st)
	metrics.ActiveReadings.Inc()

	balance := s.balanceOf(ctx, st.reading.ClientID)
	s.saveSnapshotLocked(ctx, st, balance)
	s.bus.Publish(events.Event{
		Kind:         events.KindSessionStarted,
		ReadingID:    st.reading.ID,
		AccountID:    st.reading.ClientID,
		BalanceCents: balance,
	})

	s.logger.Info("reading activated",
		zap.String("reading_id", id.String()),
		zap.Int64("client_id", st.reading.ClientID),
		zap.Int64("rate_cents", st.reading.RatePerMinuteCents),
	)
	cp := *st.reading
	return &cp, nil
}

// Pause suspends metering without ending the reading. No charge accrues while
// paused; the loop is stopped before this returns.
func (s *ReadingsService) Pause(ctx context.Context, id uuid.UUID) (*models.Reading, error) {
	st, err := s.state(ctx, id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !canTransition(st.reading.Status, models.ReadingStatusPaused) {
		return nil, ErrInvalidTransition
	}
	s.stopMeterLocked(st)
	st.transientRetry = false
	st.reading.Status = models.ReadingStatusPaused
	if err := s.readings.UpdateStatus(ctx, id, st.reading.Status, time.Time{}); err != nil {
		return nil, err
	}
	metrics.ActiveReadings.Dec()

	s.saveSnapshotLocked(ctx, st, s.balanceOf(ctx, st.reading.ClientID))
	s.bus.Publish(events.Event{
		Kind:      events.KindSessionPaused,
		ReadingID: st.reading.ID,
		AccountID: st.reading.ClientID,
	})
	cp := *st.reading
	return &cp, nil
}

// Resume restarts metering after an explicit pause, only if the client can
// still afford one interval.
func (s *ReadingsService) Resume(ctx context.Context, id uuid.UUID) (*models.Reading, error) {
	st, err := s.state(ctx, id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.reading.Status != models.ReadingStatusPaused {
		return nil, ErrInvalidTransition
	}

	wallet, err := s.ledger.Balance(ctx, st.reading.ClientID)
	if err != nil {
		return nil, err
	}
	if wallet.AvailableCents < tickChargeCents(st.reading.RatePerMinuteCents, s.tick) {
		return nil, ErrInsufficientBalance
	}

	// A manual resume starts the billing cycle over: any pending automatic
	// retry from a failed charge is forgotten.
	st.transientRetry = false
	st.reading.Status = models.ReadingStatusActive
	if err := s.readings.UpdateStatus(ctx, id, st.reading.Status, time.Time{}); err != nil {
		return nil, err
	}
	s.startMeterLocked(st)
	metrics.ActiveReadings.Inc()

	s.saveSnapshotLocked(ctx, st, wallet.AvailableCents)
	s.bus.Publish(events.Event{
		Kind:         events.KindSessionResumed,
		ReadingID:    st.reading.ID,
		AccountID:    st.reading.ClientID,
		BalanceCents: wallet.AvailableCents,
	})
	cp := *st.reading
	return &cp, nil
}

// End terminates the reading. Idempotent: a second call returns the terminal
// record without a second event or persistence write.
func (s *ReadingsService) End(ctx context.Context, id uuid.UUID, reason string) (*models.Reading, error) {
	return s.terminate(ctx, id, models.ReadingStatusEnded, reason)
}

// Fail marks an unrecoverable error during connect or while active.
func (s *ReadingsService) Fail(ctx context.Context, id uuid.UUID, reason string) (*models.Reading, error) {
	return s.terminate(ctx, id, models.ReadingStatusFailed, reason)
}

func (s *ReadingsService) terminate(ctx context.Context, id uuid.UUID, status, reason string) (*models.Reading, error) {
	st, err := s.state(ctx, id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.reading.Terminal() {
		cp := *st.reading
		return &cp, nil
	}
	if !canTransition(st.reading.Status, status) {
		return nil, ErrInvalidTransition
	}

	wasMetering := st.stop != nil
	s.stopMeterLocked(st)
	st.transientRetry = false

	st.reading.Status = status
	st.reading.EndReason = reason
	st.reading.EndedAt = time.Now().UTC()
	if err := s.readings.Finalize(ctx, st.reading); err != nil {
		return nil, err
	}

	if wasMetering {
		metrics.ActiveReadings.Dec()
	}
	metrics.ReadingsEnded.WithLabelValues(reason).Inc()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to delete active reading cache", zap.Error(err))
		}
	}

	s.bus.Publish(events.Event{
		Kind:      events.KindSessionEnded,
		ReadingID: st.reading.ID,
		AccountID: st.reading.ClientID,
		Reason:    reason,
	})
	s.bus.DropReading(id)

	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()

	s.logger.Info("reading terminated",
		zap.String("reading_id", id.String()),
		zap.String("status", status),
		zap.String("reason", reason),
		zap.Int64("billed_ms", st.reading.BilledMs),
		zap.Int64("total_cost_cents", st.reading.TotalCostCents),
	)
	cp := *st.reading
	return &cp, nil
}

// ListByClient returns the client's reading history.
func (s *ReadingsService) ListByClient(ctx context.Context, clientID int64, limit int) ([]models.Reading, error) {
	return s.readings.ListByClient(ctx, clientID, limit)
}

// ListActive returns currently running readings.
func (s *ReadingsService) ListActive(ctx context.Context, limit int) ([]models.Reading, error) {
	return s.readings.ListActive(ctx, limit)
}

// Shutdown stops every metering loop without changing reading status. Used on
// process exit.
func (s *ReadingsService) Shutdown() {
	s.mu.Lock()
	states := make([]*readingState, 0, len(s.live))
	for _, st := range s.live {
		states = append(states, st)
	}
	s.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		s.stopMeterLocked(st)
		st.mu.Unlock()
	}
}

func (s *ReadingsService) balanceOf(ctx context.Context, accountID int64) int64 {
	wallet, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		s.logger.Warn("failed to read balance", zap.Int64("account_id", accountID), zap.Error(err))
		return 0
	}
	return wallet.AvailableCents
}

// saveSnapshotLocked mirrors the live reading into the cache. Caller holds st.mu.
func (s *ReadingsService) saveSnapshotLocked(ctx context.Context, st *readingState, balanceCents int64) {
	if s.cache == nil {
		return
	}
	err := s.cache.Save(ctx, redisstore.ActiveReading{
		ReadingID:      st.reading.ID,
		ClientID:       st.reading.ClientID,
		ReaderID:       st.reading.ReaderID,
		Kind:           st.reading.Kind,
		Status:         st.reading.Status,
		RateCents:      st.reading.RatePerMinuteCents,
		BilledMs:       st.reading.BilledMs,
		TotalCostCents: st.reading.TotalCostCents,
		BalanceCents:   balanceCents,
	})
	if err != nil {
		s.logger.Warn("failed to cache active reading", zap.String("reading_id", st.reading.ID.String()), zap.Error(err))
	}
}
