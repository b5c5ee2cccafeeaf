package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheFetchPopulatesAndReuses(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (map[string]Verdict, error) {
		calls++
		return map[string]Verdict{"orders:read": {Granted: true, SourceRoleID: 1, SourceRoleCode: "clerk"}}, nil
	}

	first, err := cache.Fetch(ctx, 1, loader)
	require.NoError(t, err)
	require.True(t, first["orders:read"].Granted)
	require.Equal(t, 1, calls)

	second, err := cache.Fetch(ctx, 1, loader)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls, "second fetch must come from Redis")
}

func TestCacheInvalidateForcesRecompute(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (map[string]Verdict, error) {
		calls++
		return map[string]Verdict{}, nil
	}

	_, err := cache.Fetch(ctx, 7, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 7))

	_, err = cache.Fetch(ctx, 7, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestCacheCorruptPayloadRecomputes(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("rbac:effective:3", "{not json"))

	out, err := cache.Fetch(ctx, 3, func(context.Context) (map[string]Verdict, error) {
		return map[string]Verdict{"x": {Granted: true}}, nil
	})
	require.NoError(t, err)
	require.True(t, out["x"].Granted)
}

func TestCacheNilClientDegrades(t *testing.T) {
	var cache *Cache
	out, err := cache.Fetch(context.Background(), 1, func(context.Context) (map[string]Verdict, error) {
		return map[string]Verdict{"x": {Granted: true}}, nil
	})
	require.NoError(t, err)
	require.True(t, out["x"].Granted)
	require.NoError(t, cache.Invalidate(context.Background(), 1))
}

func TestCacheExpiryRefreshes(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (map[string]Verdict, error) {
		calls++
		return map[string]Verdict{}, nil
	}

	_, err := cache.Fetch(ctx, 2, loader)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cache.Fetch(ctx, 2, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
