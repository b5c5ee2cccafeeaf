package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "rbac:effective:"

// Cache stores computed effective permission maps in Redis. Concurrent
// misses for the same role are collapsed through singleflight so the
// snapshot is loaded once. All methods are nil-safe; a nil client
// degrades to straight computation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache builds a cache helper with the given TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Fetch returns the cached map for the role or populates it via loader.
func (c *Cache) Fetch(ctx context.Context, roleID int64, loader func(context.Context) (map[string]Verdict, error)) (map[string]Verdict, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := c.key(roleID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached map[string]Verdict
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Corrupt payload: fall through and recompute.
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		computed, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(computed)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			return nil, err
		}
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(map[string]Verdict), nil
}

// Invalidate drops cached maps for the given roles.
func (c *Cache) Invalidate(ctx context.Context, roleIDs ...int64) error {
	if c == nil || c.client == nil || len(roleIDs) == 0 {
		return nil
	}
	keys := make([]string, len(roleIDs))
	for i, id := range roleIDs {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (c *Cache) key(roleID int64) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, roleID)
}
