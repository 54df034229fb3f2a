package commandqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_Seen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := newDedupCache(ctx, time.Minute)

	assert.False(t, cache.Seen("update:1"))
	assert.True(t, cache.Seen("update:1"))
	assert.False(t, cache.Seen("update:2"))
	assert.Equal(t, 2, cache.Size())

	cancel()
	<-cache.done
}

func TestDedupCache_Expiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := newDedupCache(ctx, 20*time.Millisecond)
	assert.False(t, cache.Seen("k"))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, cache.Seen("k"), "expired key should be accepted again")

	assert.Eventually(t, func() bool {
		return cache.Size() == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-cache.done
}

func TestDedupCache_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := newDedupCache(ctx, 50*time.Millisecond)
	cancel()

	select {
	case <-cache.done:
		// ok
	case <-time.After(1 * time.Second):
		t.Fatalf("dedup cache cleanup did not stop within timeout")
	}
}
