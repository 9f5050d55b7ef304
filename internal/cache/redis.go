// Package cache provides the best-effort Redis cache in front of slot
// listings.  Nothing here returns an error: an unreachable or failing Redis
// turns into a miss on lookup and a no-op on store, so reads never depend on
// the cache being up.
package cache

import (
	"context"
	"crypto/sha1"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/room-slot-reservation/internal/config"
)

// opTimeout bounds each Redis round trip so a slow cache cannot stall a read.
const opTimeout = 300 * time.Millisecond

// SlotCache stores encoded slot listings under prefixed, hashed keys.
type SlotCache struct {
	rdb    redis.Cmdable
	prefix string
	log    *zap.Logger
}

// New returns a SlotCache, or nil when caching is disabled or there is no
// client.  A nil *SlotCache is safe to use and always misses.
func New(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) *SlotCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "slots"
	}
	return &SlotCache{rdb: rdb, prefix: prefix, log: log}
}

// Key maps a listing key to the Redis key it is stored under.
func (c *SlotCache) Key(key string) string {
	sum := sha1.Sum([]byte(key))
	return fmt.Sprintf("%s:%x", c.prefix, sum[:])
}

// Lookup returns the cached value for key.  Errors are reported as misses.
func (c *SlotCache) Lookup(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	bs, err := c.rdb.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return bs, true
}

// Store saves val for ttl and reports whether Redis accepted it.
func (c *SlotCache) Store(ctx context.Context, key string, val []byte, ttl time.Duration) bool {
	if c == nil || ttl <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()
	if err := c.rdb.SetEx(ctx, c.Key(key), val, ttl).Err(); err != nil {
		c.log.Debug("cache store failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
