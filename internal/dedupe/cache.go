// ABOUTME: Thread-safe TTL cache for replaying idempotent request results.
// ABOUTME: A key is claimed before the work runs and completed with its result afterwards.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Status describes what Claim found for a key.
type Status int

const (
	// Claimed means the key was free and now belongs to the caller.
	Claimed Status = iota
	// Pending means another caller claimed the key and has not completed it.
	Pending
	// Done means the key was completed; the stored value is returned.
	Done
)

func (s Status) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case Pending:
		return "pending"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// cacheEntry stores the timestamp, list element and result for a cached key.
type cacheEntry[V any] struct {
	timestamp time.Time
	element   *list.Element
	value     V
	done      bool
}

// Cache is a thread-safe, TTL-based, size-limited map from idempotency key to
// result. Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache[V any] struct {
	mu      sync.RWMutex
	seen    map[string]*cacheEntry[V]
	order   *list.List // List of keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a new cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache[V]{
		seen:    make(map[string]*cacheEntry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// live reports whether entry exists and has not expired. Must be called with mu held.
func (c *Cache[V]) live(entry *cacheEntry[V]) bool {
	return entry != nil && c.now().Sub(entry.timestamp) < c.ttl
}

// Lookup returns the state of key without claiming it. The value is only
// meaningful when the status is Done.
func (c *Cache[V]) Lookup(key string) (V, Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	entry := c.seen[key]
	if !c.live(entry) {
		return zero, Claimed
	}
	if !entry.done {
		return zero, Pending
	}
	return entry.value, Done
}

// Claim atomically checks key and claims it if it is free or expired.
// On Claimed the caller must later call Complete or Release.
// This prevents TOCTOU races between concurrent requests with the same key.
func (c *Cache[V]) Claim(key string) (V, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if entry := c.seen[key]; c.live(entry) {
		if !entry.done {
			return zero, Pending
		}
		return entry.value, Done
	}

	c.markLocked(key)
	return zero, Claimed
}

// Complete stores the result for a claimed key and restarts its TTL.
func (c *Cache[V]) Complete(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.markLocked(key)
	entry.value = value
	entry.done = true
}

// Release drops a claim without storing a result so the key can be retried.
func (c *Cache[V]) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
}

// Len returns the number of entries, including expired ones not yet cleaned up.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// markLocked creates or refreshes the entry for key. Must be called with mu held.
func (c *Cache[V]) markLocked(key string) *cacheEntry[V] {
	now := c.now()

	// If key already exists, reset it and move to back
	if entry, exists := c.seen[key]; exists {
		var zero V
		entry.timestamp = now
		entry.value = zero
		entry.done = false
		c.order.MoveToBack(entry.element)
		return entry
	}

	// Evict oldest if at capacity
	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry[V]{
		timestamp: now,
		element:   c.order.PushBack(key),
	}
	c.seen[key] = entry
	return entry
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held. O(1) operation using linked list.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
