package pool

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// StatusCache remembers endpoints that recently failed to open. A missing
// entry means the endpoint is assumed to be live.
type StatusCache interface {
	// IsDead reports whether address was marked dead and the mark has not
	// expired yet.
	IsDead(ctx context.Context, address string) (bool, error)
	// MarkDead marks address dead for ttl.
	MarkDead(ctx context.Context, address string, ttl time.Duration) error
	// MarkAlive removes the dead mark of address.
	MarkAlive(ctx context.Context, address string) error
}

// DefaultStatusCacheSize bounds the number of endpoints a
// MemoryStatusCache tracks.
const DefaultStatusCacheSize = 1024

// MemoryStatusCache is a process-local StatusCache.
type MemoryStatusCache struct {
	marks *expirable.LRU[string, time.Time]
	mutex sync.Mutex
	now   func() time.Time
}

var _ StatusCache = (*MemoryStatusCache)(nil)

// NewMemoryStatusCache creates a cache for at most size endpoints. A
// non-positive size means DefaultStatusCacheSize.
func NewMemoryStatusCache(size int) *MemoryStatusCache {
	if size <= 0 {
		size = DefaultStatusCacheSize
	}
	return &MemoryStatusCache{
		// Marks carry their own deadline, the LRU itself never expires them.
		marks: expirable.NewLRU[string, time.Time](size, nil, 0),
		now:   time.Now,
	}
}

func (c *MemoryStatusCache) IsDead(_ context.Context, address string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	expiresAt, ok := c.marks.Get(address)
	if !ok {
		return false, nil
	}
	if !c.now().Before(expiresAt) {
		c.marks.Remove(address)
		return false, nil
	}
	return true, nil
}

func (c *MemoryStatusCache) MarkDead(_ context.Context, address string, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.marks.Add(address, c.now().Add(ttl))
	return nil
}

func (c *MemoryStatusCache) MarkAlive(_ context.Context, address string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.marks.Remove(address)
	return nil
}

// DefaultRedisKeyPrefix prefixes the keys written by RedisStatusCache.
const DefaultRedisKeyPrefix = "tarantool-query:dead:"

// RedisStatusCache shares dead marks between processes through redis. The
// mark TTL is enforced by redis key expiration.
type RedisStatusCache struct {
	client redis.UniversalClient
	prefix string
}

var _ StatusCache = (*RedisStatusCache)(nil)

// NewRedisStatusCache creates a cache on top of client. An empty prefix
// means DefaultRedisKeyPrefix.
func NewRedisStatusCache(client redis.UniversalClient, prefix string) *RedisStatusCache {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStatusCache{client: client, prefix: prefix}
}

func (c *RedisStatusCache) key(address string) string {
	return c.prefix + address
}

func (c *RedisStatusCache) IsDead(ctx context.Context, address string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(address)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisStatusCache) MarkDead(ctx context.Context, address string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	expiresAt := strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
	return c.client.Set(ctx, c.key(address), expiresAt, ttl).Err()
}

func (c *RedisStatusCache) MarkAlive(ctx context.Context, address string) error {
	return c.client.Del(ctx, c.key(address)).Err()
}
