package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event kinds published on the billing bus.
const (
	KindSessionStarted = "session_started"
	KindMinuteCharged  = "minute_charged"
	KindSessionPaused  = "session_paused"
	KindSessionResumed = "session_resumed"
	KindSessionEnded   = "session_ended"
	KindBalanceLow     = "balance_low"
	KindPaymentFailed  = "payment_failed"
)

// Event carries a billing or lifecycle notification for one reading.
type Event struct {
	Kind         string    `json:"kind"`
	ReadingID    uuid.UUID `json:"reading_id"`
	AccountID    int64     `json:"account_id,omitempty"`
	AmountCents  int64     `json:"amount_cents,omitempty"`
	BalanceCents int64     `json:"balance_cents,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// Handler consumes one event. Handlers run synchronously in emission order; a
// panicking handler is isolated and must not block the others.
type Handler func(Event)

type subscription struct {
	id      int64
	handler Handler
}

// Bus is a single-process publish/subscribe fan-out with global and
// per-reading subscribers.
type Bus struct {
	mu         sync.RWMutex
	nextID     int64
	global     []subscription
	perReading map[uuid.UUID][]subscription
	logger     *zap.Logger
}

// NewBus builds an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		perReading: make(map[uuid.UUID][]subscription),
		logger:     logger,
	}
}

// Subscribe registers a global handler. The returned func removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.global = append(b.global, subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.global = remove(b.global, id)
	}
}

// SubscribeReading registers a handler for one reading's events only.
func (b *Bus) SubscribeReading(readingID uuid.UUID, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.perReading[readingID] = append(b.perReading[readingID], subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := remove(b.perReading[readingID], id)
		if len(subs) == 0 {
			delete(b.perReading, readingID)
		} else {
			b.perReading[readingID] = subs
		}
	}
}

// Publish delivers the event to per-reading subscribers first, then global
// ones, in registration order. Delivery is synchronous so emission order is
// observation order.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.perReading[e.ReadingID])+len(b.global))
	subs = append(subs, b.perReading[e.ReadingID]...)
	subs = append(subs, b.global...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event subscriber panicked",
				zap.String("kind", e.Kind),
				zap.String("reading_id", e.ReadingID.String()),
				zap.Any("panic", r),
			)
		}
	}()
	sub.handler(e)
}

// DropReading removes all per-reading subscribers, used after a reading ends.
func (b *Bus) DropReading(readingID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.perReading, readingID)
}

func remove(subs []subscription, id int64) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
