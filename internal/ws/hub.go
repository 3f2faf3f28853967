package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"veilink/internal/events"
)

// Hub tracks participant connections grouped by reading and relays billing
// events to them as JSON frames.
type Hub struct {
	mu           sync.RWMutex
	readings     map[uuid.UUID]map[*Connection]struct{}
	unsubs       map[uuid.UUID]func()
	bus          *events.Bus
	logger       *zap.Logger
	pingInterval time.Duration
}

// NewHub builds the hub over the billing event bus.
func NewHub(bus *events.Bus, pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		readings:     make(map[uuid.UUID]map[*Connection]struct{}),
		unsubs:       make(map[uuid.UUID]func()),
		bus:          bus,
		logger:       logger,
		pingInterval: pingInterval,
	}
}

// Add registers a connection. The first connection for a reading subscribes
// the hub to that reading's events.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := conn.ReadingID()
	set, ok := h.readings[id]
	if !ok {
		set = make(map[*Connection]struct{})
		h.readings[id] = set
		h.unsubs[id] = h.bus.SubscribeReading(id, func(e events.Event) {
			h.broadcast(e)
		})
	}
	set[conn] = struct{}{}
}

// Remove drops a connection and unsubscribes from the reading once its last
// participant is gone.
func (h *Hub) Remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := conn.ReadingID()
	set, ok := h.readings[id]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.readings, id)
		if unsub := h.unsubs[id]; unsub != nil {
			unsub()
		}
		delete(h.unsubs, id)
	}
}

func (h *Hub) broadcast(e events.Event) {
	encoded, err := json.Marshal(eventFrame{Type: "event", Event: e})
	if err != nil {
		h.logger.Error("failed to encode event frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.readings[e.ReadingID]))
	for conn := range h.readings[e.ReadingID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	ended := e.Kind == events.KindSessionEnded
	for _, conn := range conns {
		conn.Send(encoded)
		if ended {
			// The reading is over; hang up on both participants once the
			// final event is delivered.
			conn.CloseWithReason(websocket.CloseNormalClosure, "reading ended")
		}
	}
}

type eventFrame struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

// Start begins ping loop to keep connections active.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			for _, set := range h.readings {
				for conn := range set {
					conn.Ping()
				}
			}
			h.mu.RUnlock()
		}
	}
}
