package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"veilink/internal/events"
	"veilink/internal/ledger"
	"veilink/internal/metrics"
	"veilink/internal/models"
)

// startMeterLocked launches the metering loop for st, first guaranteeing any
// prior loop is cancelled. Caller holds st.mu.
func (s *ReadingsService) startMeterLocked(st *readingState) {
	s.stopMeterLocked(st)
	stop := make(chan struct{})
	st.stop = stop
	go s.meterLoop(st, stop)
}

// stopMeterLocked cancels the current loop synchronously. Caller holds st.mu;
// a tick observing a stale stop channel skips itself, so no charge lands after
// cancellation.
func (s *ReadingsService) stopMeterLocked(st *readingState) {
	if st.stop != nil {
		close(st.stop)
		st.stop = nil
	}
}

func (s *ReadingsService) meterLoop(st *readingState, stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			s.runTick(st, stop)
		}
	}
}

// runTick performs one chargeable interval: deduct from the ledger, accumulate
// duration and cost, emit events. Holding st.mu across the charge and the
// publish keeps the minute_charged / session_paused ordering deterministic.
func (s *ReadingsService) runTick(st *readingState, stop chan struct{}) {
	st.mu.Lock()

	if st.stop != stop {
		// A newer loop owns this reading.
		st.mu.Unlock()
		return
	}

	status := st.reading.Status
	retrying := status == models.ReadingStatusPaused && st.transientRetry
	if status != models.ReadingStatusActive && !retrying {
		st.mu.Unlock()
		return
	}

	reading := st.reading
	amount := tickChargeCents(reading.RatePerMinuteCents, s.tick)
	ctx, cancel := context.WithTimeout(context.Background(), s.tick)
	defer cancel()

	wallet, err := s.ledger.Charge(ctx, reading.ClientID, amount, reading.ID)
	if err != nil {
		s.handleChargeFailure(ctx, st, err)
		return
	}

	// A successful charge settles any outstanding retry.
	st.transientRetry = false

	if retrying {
		// The processor recovered within the retry window.
		reading.Status = models.ReadingStatusActive
		if updErr := s.readings.UpdateStatus(ctx, reading.ID, reading.Status, time.Time{}); updErr != nil {
			s.logger.Warn("failed to persist resume after retry", zap.Error(updErr))
		}
		s.bus.Publish(events.Event{
			Kind:         events.KindSessionResumed,
			ReadingID:    reading.ID,
			AccountID:    reading.ClientID,
			BalanceCents: wallet.AvailableCents,
		})
	}

	reading.BilledMs += s.tick.Milliseconds()
	reading.TotalCostCents += amount
	if err := s.readings.RecordTick(ctx, reading.ID, reading.BilledMs, reading.TotalCostCents); err != nil {
		s.logger.Warn("failed to persist tick", zap.String("reading_id", reading.ID.String()), zap.Error(err))
	}

	s.saveSnapshotLocked(ctx, st, wallet.AvailableCents)
	s.bus.Publish(events.Event{
		Kind:         events.KindMinuteCharged,
		ReadingID:    reading.ID,
		AccountID:    reading.ClientID,
		AmountCents:  amount,
		BalanceCents: wallet.AvailableCents,
	})

	if wallet.AvailableCents < 2*amount {
		metrics.BalanceLowWarnings.Inc()
		s.bus.Publish(events.Event{
			Kind:         events.KindBalanceLow,
			ReadingID:    reading.ID,
			AccountID:    reading.ClientID,
			BalanceCents: wallet.AvailableCents,
		})
	}

	st.mu.Unlock()
}

// handleChargeFailure is entered with st.mu held and releases it. Exhausted
// balance ends the reading; a transient failure pauses billing and grants one
// retry on the next tick window.
func (s *ReadingsService) handleChargeFailure(ctx context.Context, st *readingState, err error) {
	reading := st.reading

	if errors.Is(err, ledger.ErrInsufficientFunds) {
		st.mu.Unlock()
		if _, endErr := s.End(ctx, reading.ID, models.EndReasonInsufficientBalance); endErr != nil {
			s.logger.Error("failed to end exhausted reading", zap.String("reading_id", reading.ID.String()), zap.Error(endErr))
		}
		return
	}

	if st.transientRetry {
		st.mu.Unlock()
		s.logger.Warn("charge retry failed, ending reading",
			zap.String("reading_id", reading.ID.String()),
			zap.Error(err),
		)
		if _, endErr := s.End(ctx, reading.ID, models.EndReasonPaymentFailed); endErr != nil {
			s.logger.Error("failed to end reading after retry", zap.String("reading_id", reading.ID.String()), zap.Error(endErr))
		}
		return
	}

	// First transient failure: suspend billing, keep the loop for one retry.
	st.transientRetry = true
	reading.Status = models.ReadingStatusPaused
	if updErr := s.readings.UpdateStatus(ctx, reading.ID, reading.Status, time.Time{}); updErr != nil {
		s.logger.Warn("failed to persist transient pause", zap.Error(updErr))
	}
	s.logger.Warn("charge failed, pausing reading for retry",
		zap.String("reading_id", reading.ID.String()),
		zap.Error(err),
	)
	s.bus.Publish(events.Event{
		Kind:      events.KindPaymentFailed,
		ReadingID: reading.ID,
		AccountID: reading.ClientID,
		Reason:    err.Error(),
	})
	s.bus.Publish(events.Event{
		Kind:      events.KindSessionPaused,
		ReadingID: reading.ID,
		AccountID: reading.ClientID,
	})
	st.mu.Unlock()
}
