package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ItemStore keeps the single item of a buy-now checkout so the session
// survives a page reload mid-payment. A nil item means nothing is saved.
type ItemStore interface {
	Load(ctx context.Context, storeID, sessionID string) (*Item, error)
	Save(ctx context.Context, storeID, sessionID string, item Item) error
	Clear(ctx context.Context, storeID, sessionID string) error
}

// RedisItemStore implements ItemStore with a per-session TTL so abandoned
// buy-now sessions expire on their own.
type RedisItemStore struct {
	R   *redis.Client
	TTL time.Duration
}

func (s RedisItemStore) Load(ctx context.Context, storeID, sessionID string) (*Item, error) {
	raw, err := s.R.Get(ctx, buyNowKey(storeID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("buynow: decode saved item: %w", err)
	}
	return &item, nil
}

func (s RedisItemStore) Save(ctx context.Context, storeID, sessionID string, item Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("buynow: encode item: %w", err)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return s.R.Set(ctx, buyNowKey(storeID, sessionID), raw, ttl).Err()
}

func (s RedisItemStore) Clear(ctx context.Context, storeID, sessionID string) error {
	return s.R.Del(ctx, buyNowKey(storeID, sessionID)).Err()
}

func buyNowKey(storeID, sessionID string) string {
	return fmt.Sprintf("buynow:%s:%s", storeID, sessionID)
}
