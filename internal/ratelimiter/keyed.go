package ratelimiter

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Keyed holds one RateLimiter per key.
//
// Limiters live in an expirable LRU: idle keys age out after ttl and the
// table never exceeds size entries. An evicted key starts again with a full
// bucket, which is the price of the bound.
type Keyed struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	limiters *expirable.LRU[string, *RateLimiter]
}

// KeyedConfig configures a Keyed limiter table.
type KeyedConfig struct {
	// PerSecond is the sustained rate per key. Zero disables limiting.
	PerSecond float64

	// Burst is the bucket capacity per key.
	Burst int

	// Size caps the number of tracked keys (default 10000).
	Size int

	// TTL drops keys that have been idle this long (default 15m).
	TTL time.Duration
}

// NewKeyed creates a per-key limiter table.
func NewKeyed(cfg KeyedConfig) *Keyed {
	if cfg.Size <= 0 {
		cfg.Size = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}

	return &Keyed{
		perSecond: cfg.PerSecond,
		burst:     cfg.Burst,
		limiters:  expirable.NewLRU[string, *RateLimiter](cfg.Size, nil, cfg.TTL),
	}
}

// Allow takes a token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	if k.perSecond <= 0 {
		return true
	}
	return k.limiter(key).Allow()
}

// Reset forgets key, restoring a full bucket.
func (k *Keyed) Reset(key string) {
	k.limiters.Remove(key)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	return k.limiters.Len()
}

// limiter returns key's limiter, creating it on first use. The mutex makes
// get-or-create atomic so concurrent first requests share one bucket.
func (k *Keyed) limiter(key string) *RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if l, ok := k.limiters.Get(key); ok {
		return l
	}
	l := New(k.perSecond, k.burst)
	k.limiters.Add(key, l)
	return l
}
