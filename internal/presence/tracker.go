package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"relay/infrastructure"
	"relay/internal/cache"
)

const (
	onlineKeyPrefix   = "relay:presence:online:"
	lastSeenKeyPrefix = "relay:presence:lastseen:"
)

// RedisTracker keeps one counter per identity: the number of processes with
// at least one live connection for it.
type RedisTracker struct {
	cache *cache.RedisCache
}

func NewRedisTracker(c *cache.RedisCache) *RedisTracker {
	return &RedisTracker{cache: c}
}

func (t *RedisTracker) Connected(ctx context.Context, identityID string) error {
	err := t.cache.Client.Incr(ctx, onlineKeyPrefix+identityID).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return nil
}

func (t *RedisTracker) Disconnected(ctx context.Context, identityID string, at time.Time) error {
	n, err := t.cache.Client.Decr(ctx, onlineKeyPrefix+identityID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	if n < 0 {
		// A crashed process never decremented its share; clamp rather than
		// let the count drift negative.
		t.cache.Client.Set(ctx, onlineKeyPrefix+identityID, 0, 0)
	}
	if err := t.cache.Set(ctx, lastSeenKeyPrefix+identityID, at.Format(time.RFC3339Nano), 0); err != nil {
		return err
	}
	return nil
}

func (t *RedisTracker) IsOnline(ctx context.Context, identityID string) (bool, error) {
	n, err := t.cache.Client.Get(ctx, onlineKeyPrefix+identityID).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return n > 0, nil
}

func (t *RedisTracker) LastSeen(ctx context.Context, identityID string) (*time.Time, error) {
	value, err := t.cache.Get(ctx, lastSeenKeyPrefix+identityID)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	seen, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, nil
	}
	return &seen, nil
}
