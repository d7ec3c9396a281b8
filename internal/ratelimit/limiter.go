// Package ratelimit implements the per-client intake quota: at most Max
// accepted calls per key inside a window that starts at the key's first hit.
package ratelimit

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int64
	ResetAt time.Time
}

// Limiter counts calls per key. Entries expire Window after their first hit,
// evicted by the cache janitor independent of further access.
type Limiter struct {
	limit  int64
	window time.Duration
	mu     sync.Mutex
	counts *gocache.Cache
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  int64(limit),
		window: window,
		counts: gocache.New(window, window),
	}
}

// Allow reports whether another call for key fits in its current window.
func (l *Limiter) Allow(key string) bool {
	return l.Check(key).Allowed
}

// Check records a call for key and reports the resulting window state.
// A rejected call does not increment the counter.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, expires, found := l.counts.GetWithExpiration(key)
	if !found {
		l.counts.Set(key, int64(1), l.window)
		return Decision{Allowed: true, Count: 1, Limit: l.limit, ResetAt: time.Now().Add(l.window)}
	}

	count := v.(int64)
	if count >= l.limit {
		return Decision{Allowed: false, Count: count, Limit: l.limit, ResetAt: expires}
	}
	count, err := l.counts.IncrementInt64(key, 1)
	if err != nil {
		// expired between the two calls; start a fresh window
		l.counts.Set(key, int64(1), l.window)
		return Decision{Allowed: true, Count: 1, Limit: l.limit, ResetAt: time.Now().Add(l.window)}
	}
	return Decision{Allowed: true, Count: count, Limit: l.limit, ResetAt: expires}
}

// Tracked returns the number of live keys.
func (l *Limiter) Tracked() int {
	return l.counts.ItemCount()
}
