package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veilink/internal/models"
)

var (
	// ErrReaderUnavailable means the requested reader is not taking sessions.
	ErrReaderUnavailable = errors.New("readings: reader unavailable")
	// ErrInvalidKind is a reading kind outside chat/phone/video.
	ErrInvalidKind = errors.New("readings: invalid kind")
	// ErrRateNotMeterable means rate x interval does not produce a whole cent
	// amount per tick, which would let cost drift from minutes x rate.
	ErrRateNotMeterable = errors.New("readings: rate not meterable at tick interval")
)

// ReaderStore resolves reader profiles and their rates.
type ReaderStore interface {
	GetByID(ctx context.Context, id int64) (*models.Reader, error)
}

// Negotiator validates eligibility and creates readings in pending status.
// It never charges; the first deduction happens on the first metering tick.
type Negotiator struct {
	readings ReadingStore
	readers  ReaderStore
	ledger   Ledger
	sessions *ReadingsService
	tick     time.Duration
	logger   *zap.Logger
}

// NewNegotiator builds the negotiator.
func NewNegotiator(readings ReadingStore, readers ReaderStore, ledger Ledger, sessions *ReadingsService, logger *zap.Logger) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{
		readings: readings,
		readers:  readers,
		ledger:   ledger,
		sessions: sessions,
		tick:     sessions.TickInterval(),
		logger:   logger,
	}
}

// Request creates a pending reading if the client can afford at least one
// chargeable interval. Fails with ErrInsufficientBalance otherwise, creating
// nothing.
func (n *Negotiator) Request(ctx context.Context, clientID, readerID int64, kind string) (*models.Reading, error) {
	switch kind {
	case models.ReadingKindChat, models.ReadingKindPhone, models.ReadingKindVideo:
	default:
		return nil, ErrInvalidKind
	}

	reader, err := n.readers.GetByID(ctx, readerID)
	if err != nil {
		return nil, fmt.Errorf("readings: resolve reader: %w", err)
	}
	if reader.Status != models.ReaderStatusOnline {
		return nil, ErrReaderUnavailable
	}

	rate := reader.RateFor(kind)
	if rate <= 0 {
		return nil, fmt.Errorf("readings: reader %d has no %s rate", readerID, kind)
	}
	if (rate*n.tick.Milliseconds())%60000 != 0 {
		return nil, ErrRateNotMeterable
	}

	wallet, err := n.ledger.Balance(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("readings: check balance: %w", err)
	}
	if wallet.AvailableCents < tickChargeCents(rate, n.tick) {
		return nil, ErrInsufficientBalance
	}

	reading := &models.Reading{
		ID:                 uuid.New(),
		ClientID:           clientID,
		ReaderID:           readerID,
		Kind:               kind,
		RatePerMinuteCents: rate,
		Status:             models.ReadingStatusPending,
	}
	if err := n.readings.Create(ctx, reading); err != nil {
		return nil, fmt.Errorf("readings: create: %w", err)
	}
	n.sessions.Track(reading)

	n.logger.Info("reading negotiated",
		zap.String("reading_id", reading.ID.String()),
		zap.Int64("client_id", clientID),
		zap.Int64("reader_id", readerID),
		zap.String("kind", kind),
		zap.Int64("rate_cents", rate),
	)
	return reading, nil
}
