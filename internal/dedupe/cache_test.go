// ABOUTME: Tests for the idempotency replay cache.
// ABOUTME: Validates claim states, TTL expiration, size limits, eviction, cleanup, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(ttl time.Duration, maxSize int) (*Cache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](ttl, maxSize)
	c.now = clock.Now
	return c, clock
}

func TestCache_Claim_NewKey(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	_, status := cache.Claim("new-key")
	assert.Equal(t, Claimed, status, "first Claim should own the key")

	_, status = cache.Lookup("new-key")
	assert.Equal(t, Pending, status, "claimed key is pending until completed")
}

func TestCache_Claim_Pending(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Claim("busy-key")

	_, status := cache.Claim("busy-key")
	assert.Equal(t, Pending, status)
}

func TestCache_CompleteAndReplay(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Claim("key")
	cache.Complete("key", "first response")

	v, status := cache.Claim("key")
	assert.Equal(t, Done, status)
	assert.Equal(t, "first response", v)

	v, status = cache.Lookup("key")
	assert.Equal(t, Done, status)
	assert.Equal(t, "first response", v)
}

func TestCache_Release(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Claim("retry-key")
	cache.Release("retry-key")

	_, status := cache.Claim("retry-key")
	assert.Equal(t, Claimed, status, "released key can be claimed again")

	// Releasing an unknown key is a no-op.
	cache.Release("never-seen")
}

func TestCache_Expired(t *testing.T) {
	cache, clock := newTestCache(10*time.Second, 100)
	defer cache.Close()

	cache.Claim("expiring-key")
	cache.Complete("expiring-key", "v1")

	clock.Advance(9 * time.Second)
	_, status := cache.Lookup("expiring-key")
	assert.Equal(t, Done, status, "should be seen before expiry")

	clock.Advance(2 * time.Second)
	_, status = cache.Lookup("expiring-key")
	assert.Equal(t, Claimed, status, "expired key reads as free")

	_, status = cache.Claim("expiring-key")
	assert.Equal(t, Claimed, status, "expired key can be reclaimed")

	_, status = cache.Lookup("expiring-key")
	assert.Equal(t, Pending, status, "reclaiming clears the old value")
}

func TestCache_Complete_RestartsTTL(t *testing.T) {
	cache, clock := newTestCache(10*time.Second, 100)
	defer cache.Close()

	cache.Claim("slow-key")
	clock.Advance(8 * time.Second)
	cache.Complete("slow-key", "done")

	clock.Advance(8 * time.Second)
	_, status := cache.Lookup("slow-key")
	assert.Equal(t, Done, status, "TTL counts from completion")
}

func TestCache_EvictionOrder(t *testing.T) {
	cache, clock := newTestCache(5*time.Minute, 3)
	defer cache.Close()

	for _, k := range []string{"first", "second", "third"} {
		cache.Claim(k)
		cache.Complete(k, k)
		clock.Advance(time.Millisecond)
	}
	assert.Equal(t, 3, cache.Len())

	// Add fourth - should evict "first" (oldest)
	cache.Claim("fourth")

	_, status := cache.Lookup("first")
	assert.Equal(t, Claimed, status, "first should be evicted")
	for _, k := range []string{"second", "third"} {
		_, status := cache.Lookup(k)
		assert.Equal(t, Done, status, k)
	}

	// Completing an existing key moves it to the back.
	cache.Complete("second", "again")
	cache.Claim("fifth")

	_, status = cache.Lookup("third")
	assert.Equal(t, Claimed, status, "third is now the oldest and should be evicted")
	v, status := cache.Lookup("second")
	assert.Equal(t, Done, status)
	assert.Equal(t, "again", v)
}

func TestCache_Cleanup(t *testing.T) {
	cache, clock := newTestCache(10*time.Second, 100)
	defer cache.Close()

	for i := 0; i < 3; i++ {
		cache.Claim(fmt.Sprintf("cleanup-%d", i))
	}
	clock.Advance(5 * time.Second)
	cache.Claim("survivor")
	clock.Advance(6 * time.Second)

	cache.runCleanup()

	assert.Equal(t, 1, cache.Len(), "cleanup should remove expired entries from map")
	_, status := cache.Lookup("survivor")
	assert.Equal(t, Pending, status)
}

func TestCache_Claim_Atomic(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100

	var mu sync.Mutex
	winners := 0
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if _, status := cache.Claim("contested-key"); status == Claimed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one goroutine should win the race for Claim")
}

func TestCache_Concurrent(t *testing.T) {
	cache := New[int](5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id%10, j%10)
				if _, status := cache.Claim(key); status == Claimed {
					cache.Complete(key, j)
				}
				cache.Lookup(key)
			}
		}(i)
	}
	wg.Wait()

	_, status := cache.Claim("final-key")
	require.Equal(t, Claimed, status)
	cache.Complete("final-key", 7)
	v, status := cache.Lookup("final-key")
	assert.Equal(t, Done, status)
	assert.Equal(t, 7, v)
}

func TestCache_Close(t *testing.T) {
	cache := New[string](5*time.Minute, 100)

	// Close should not panic and should stop the cleanup goroutine
	cache.Close()

	// Multiple closes should not panic
	cache.Close()
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "claimed", Claimed.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "unknown", Status(42).String())
}
