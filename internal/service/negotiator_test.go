package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"veilink/internal/models"
)

func TestNegotiatorCreatesPendingReading(t *testing.T) {
	_, neg, readings, _, _ := newTestStack(t, map[int64]int64{100: 500}, 10*time.Millisecond)

	reading, err := neg.Request(context.Background(), 100, 1, models.ReadingKindChat)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if reading.Status != models.ReadingStatusPending {
		t.Errorf("expected pending status, got %s", reading.Status)
	}
	if reading.RatePerMinuteCents != 60000 {
		t.Errorf("expected chat rate 60000, got %d", reading.RatePerMinuteCents)
	}
	if readings.count() != 1 {
		t.Errorf("expected 1 persisted reading, got %d", readings.count())
	}
}

func TestNegotiatorBalanceExactlyOneInterval(t *testing.T) {
	// Chat rate 60000/min at 10ms tick = 10 cents per interval.
	_, neg, _, _, _ := newTestStack(t, map[int64]int64{100: 10}, 10*time.Millisecond)

	if _, err := neg.Request(context.Background(), 100, 1, models.ReadingKindChat); err != nil {
		t.Fatalf("expected success with exactly one interval of balance, got %v", err)
	}
}

func TestNegotiatorInsufficientBalanceCreatesNothing(t *testing.T) {
	_, neg, readings, _, _ := newTestStack(t, map[int64]int64{100: 9}, 10*time.Millisecond)

	_, err := neg.Request(context.Background(), 100, 1, models.ReadingKindChat)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if readings.count() != 0 {
		t.Errorf("expected no reading created, got %d", readings.count())
	}
}

func TestNegotiatorRejectsInvalidKind(t *testing.T) {
	_, neg, _, _, _ := newTestStack(t, map[int64]int64{100: 1000}, 10*time.Millisecond)

	if _, err := neg.Request(context.Background(), 100, 1, "tarot"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestNegotiatorRejectsOfflineReader(t *testing.T) {
	readings := newMemReadings()
	led := newFakeLedger(map[int64]int64{100: 1000})
	svc := NewReadingsService(readings, led, newTestBus(), nil, 10*time.Millisecond, nil)
	t.Cleanup(svc.Shutdown)

	readers := newMemReaders(&models.Reader{
		ID:            2,
		Status:        models.ReaderStatusOffline,
		ChatRateCents: 60000,
	})
	neg := NewNegotiator(readings, readers, led, svc, nil)

	if _, err := neg.Request(context.Background(), 100, 2, models.ReadingKindChat); !errors.Is(err, ErrReaderUnavailable) {
		t.Fatalf("expected ErrReaderUnavailable, got %v", err)
	}
}

func TestNegotiatorRejectsUnmeterableRate(t *testing.T) {
	readings := newMemReadings()
	led := newFakeLedger(map[int64]int64{100: 100000})
	svc := NewReadingsService(readings, led, newTestBus(), nil, 10*time.Millisecond, nil)
	t.Cleanup(svc.Shutdown)

	// 59999 * 10 is not divisible by 60000: the per-tick charge would drop
	// fractional cents and cost would drift from minutes x rate.
	readers := newMemReaders(&models.Reader{
		ID:            3,
		Status:        models.ReaderStatusOnline,
		ChatRateCents: 59999,
	})
	neg := NewNegotiator(readings, readers, led, svc, nil)

	if _, err := neg.Request(context.Background(), 100, 3, models.ReadingKindChat); !errors.Is(err, ErrRateNotMeterable) {
		t.Fatalf("expected ErrRateNotMeterable, got %v", err)
	}
}
