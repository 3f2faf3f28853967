package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActiveReading is the live snapshot the presentation layer polls between
// websocket events.
type ActiveReading struct {
	ReadingID      uuid.UUID `json:"reading_id"`
	ClientID       int64     `json:"client_id"`
	ReaderID       int64     `json:"reader_id"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	RateCents      int64     `json:"rate_per_minute_cents"`
	BilledMs       int64     `json:"billed_ms"`
	TotalCostCents int64     `json:"total_cost_cents"`
	BalanceCents   int64     `json:"balance_cents"`
}

// Store manages the active reading cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(readingID uuid.UUID) string {
	return fmt.Sprintf("readings:active:%s", readingID)
}

// Save caches the snapshot, refreshing the TTL. Called on start and on every
// metering tick.
func (s *Store) Save(ctx context.Context, reading ActiveReading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(reading.ReadingID), data, s.ttl).Err()
}

// Get returns the cached snapshot.
func (s *Store) Get(ctx context.Context, readingID uuid.UUID) (*ActiveReading, error) {
	result, err := s.client.Get(ctx, s.key(readingID)).Result()
	if err != nil {
		return nil, err
	}
	var reading ActiveReading
	if err := json.Unmarshal([]byte(result), &reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

// Delete removes the snapshot once the reading ends.
func (s *Store) Delete(ctx context.Context, readingID uuid.UUID) error {
	return s.client.Del(ctx, s.key(readingID)).Err()
}
