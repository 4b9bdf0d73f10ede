package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which event IDs were handled successfully.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore is a per-process store. Expired IDs are dropped
// when they are looked up.
type MemoryIdempotencyStore struct {
	ttl time.Duration

	mu      sync.Mutex
	expires map[string]time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, expires: map[string]time.Time{}}
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.expires[eventID]
	if ok && time.Now().After(deadline) {
		delete(s.expires, eventID)
		ok = false
	}
	return ok, nil
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	s.expires[eventID] = time.Now().Add(s.ttl)
	s.mu.Unlock()
	return nil
}

// Len includes entries that expired but were not looked up since.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// RedisIdempotencyStore shares processed IDs between replicas of a
// consumer group. Keys are prefix+eventID and expire after ttl.
type RedisIdempotencyStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisIdempotencyStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.prefix+eventID).Result()
	return n == 1, err
}

func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	return s.rdb.Set(ctx, s.prefix+eventID, time.Now().Unix(), s.ttl).Err()
}

// IdempotentHandler drops events the store already knows and records an
// event only once inner returned nil. Events without an ID, and lookups
// that fail, go straight to inner: sending twice beats not sending.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}
		log := logger.With(slog.String("event_id", event.EventID), slog.String("event_type", event.EventType))

		seen, err := store.Contains(ctx, event.EventID)
		switch {
		case err != nil:
			log.Warn("dedupe lookup failed", slog.String("error", err.Error()))
		case seen:
			consumerDuplicates.WithLabelValues(event.EventType).Inc()
			log.Debug("duplicate event skipped")
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			log.Warn("dedupe record failed", slog.String("error", err.Error()))
		}
		return nil
	}
}
