package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iliyamo/room-slot-reservation/internal/config"
)

// memoryBucket keeps one x/time/rate limiter per key.  Keys unused for the
// configured TTL are dropped by sweep.
type memoryBucket struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	every    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	lastScan time.Time
}

type memoryEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newMemoryBucket(cfg config.RateLimitConfig) *memoryBucket {
	refill := cfg.RefillTokens
	if refill < 1 {
		refill = 1
	}
	perToken := cfg.RefillInterval / time.Duration(refill)
	return &memoryBucket{
		entries: make(map[string]*memoryEntry),
		every:   rate.Every(perToken),
		burst:   cfg.Capacity,
		idleTTL: cfg.TTL,
		now:     time.Now,
	}
}

func (b *memoryBucket) take(_ context.Context, key string) (decision, error) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastScan) >= b.idleTTL {
		b.sweep(now)
		b.lastScan = now
	}
	ent, ok := b.entries[key]
	if !ok {
		ent = &memoryEntry{lim: rate.NewLimiter(b.every, b.burst)}
		b.entries[key] = ent
	}
	ent.lastSeen = now

	r := ent.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return decision{allowed: false, retry: delay}, nil
	}
	return decision{allowed: true, remaining: int64(ent.lim.TokensAt(now))}, nil
}

// sweep drops limiters idle for longer than idleTTL.  b.mu must be held.
func (b *memoryBucket) sweep(now time.Time) {
	cutoff := now.Add(-b.idleTTL)
	for k, ent := range b.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(b.entries, k)
		}
	}
}
