package pool

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatusCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryStatusCache(0)
	cache.now = func() time.Time { return now }

	dead, err := cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.False(t, dead)

	require.NoError(t, cache.MarkDead(ctx, "m1:3301", time.Minute))
	dead, err = cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.True(t, dead)

	now = now.Add(time.Minute)
	dead, err = cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.False(t, dead, "the mark expires after ttl")

	require.NoError(t, cache.MarkDead(ctx, "m1:3301", time.Minute))
	require.NoError(t, cache.MarkAlive(ctx, "m1:3301"))
	dead, err = cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.False(t, dead)
}

func TestMemoryStatusCacheSize(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryStatusCache(2)

	for _, addr := range []string{"a", "b", "c"} {
		require.NoError(t, cache.MarkDead(ctx, addr, time.Hour))
	}

	dead, err := cache.IsDead(ctx, "a")
	require.NoError(t, err)
	assert.False(t, dead, "the oldest mark is evicted")
	dead, err = cache.IsDead(ctx, "c")
	require.NoError(t, err)
	assert.True(t, dead)
}

func newRedisStatusCache(t *testing.T) (*RedisStatusCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStatusCache(client, ""), mr
}

func TestRedisStatusCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisStatusCache(t)

	dead, err := cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.False(t, dead)

	require.NoError(t, cache.MarkDead(ctx, "m1:3301", time.Minute))
	assert.True(t, mr.Exists(DefaultRedisKeyPrefix+"m1:3301"))
	assert.Equal(t, time.Minute, mr.TTL(DefaultRedisKeyPrefix+"m1:3301"))
	dead, err = cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.True(t, dead)

	mr.FastForward(time.Minute)
	dead, err = cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.False(t, dead)

	require.NoError(t, cache.MarkDead(ctx, "m1:3301", time.Minute))
	require.NoError(t, cache.MarkAlive(ctx, "m1:3301"))
	dead, err = cache.IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.False(t, dead)
}

func TestRedisStatusCacheZeroTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisStatusCache(t)

	require.NoError(t, cache.MarkDead(ctx, "m1:3301", 0))
	assert.False(t, mr.Exists(DefaultRedisKeyPrefix+"m1:3301"))
}

func TestRedisStatusCacheSharedBetweenPools(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	first := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	second := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		first.Close()
		second.Close()
	})

	require.NoError(t, NewRedisStatusCache(first, "app:").MarkDead(ctx, "m1:3301", time.Minute))

	dead, err := NewRedisStatusCache(second, "app:").IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.True(t, dead)

	dead, err = NewRedisStatusCache(second, "other:").IsDead(ctx, "m1:3301")
	require.NoError(t, err)
	assert.False(t, dead)
}

func TestRedisStatusCacheError(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisStatusCache(t)
	mr.SetError("ERR cache unavailable")

	_, err := cache.IsDead(ctx, "m1:3301")
	require.Error(t, err)
}
