package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultConsumedTokenPrefix namespaces consumed confirmation token IDs.
const DefaultConsumedTokenPrefix = "gamelog:confirm:used:"

// ConsumedTokenStore implements repository.ConsumedTokenStore with SET NX.
type ConsumedTokenStore struct {
	client *goredis.Client
	prefix string
}

func NewConsumedTokenStore(client *goredis.Client, prefix string) *ConsumedTokenStore {
	if prefix == "" {
		prefix = DefaultConsumedTokenPrefix
	}
	return &ConsumedTokenStore{client: client, prefix: prefix}
}

// Consume reports true only for the first caller with id while the key lives.
// A non-positive ttl still stores the key briefly so two concurrent requests
// cannot both win.
func (s *ConsumedTokenStore) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("consume token: empty id")
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, s.prefix+id, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return ok, nil
}
