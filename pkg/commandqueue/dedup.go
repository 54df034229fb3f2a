package commandqueue

import (
	"context"
	"sync"
	"time"
)

// dedupCache remembers task keys for a bounded time.
type dedupCache struct {
	entries map[string]time.Time
	ttl     time.Duration
	mu      sync.Mutex
	done    chan struct{}
}

// newDedupCache starts a cache whose cleanup goroutine exits with ctx.
func newDedupCache(ctx context.Context, ttl time.Duration) *dedupCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	cache := &dedupCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		done:    make(chan struct{}),
	}

	go cache.cleanup(ctx)

	return cache
}

// Seen records key and reports whether it was already present and unexpired.
func (dc *dedupCache) Seen(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	now := time.Now()
	if at, exists := dc.entries[key]; exists && now.Sub(at) <= dc.ttl {
		return true
	}
	dc.entries[key] = now
	return false
}

func (dc *dedupCache) cleanup(ctx context.Context) {
	defer close(dc.done)

	interval := dc.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dc.mu.Lock()
			now := time.Now()
			for key, at := range dc.entries {
				if now.Sub(at) > dc.ttl {
					delete(dc.entries, key)
				}
			}
			dc.mu.Unlock()
		}
	}
}

// Size returns the number of remembered keys
func (dc *dedupCache) Size() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.entries)
}
