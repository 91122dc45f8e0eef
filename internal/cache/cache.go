// Package cache holds the in-process TTL cache and the shared in-flight result
// used to deduplicate concurrent fetches.
package cache

import (
	"sync"
	"time"

	"product-catalog-client/internal/domain"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) validAt(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// EntityCache maps keys to values that expire ttl after they were stored.
// Expired entries read as absent and are evicted on the access that finds them.
type EntityCache[K comparable, V any] struct {
	mu      sync.Mutex
	clock   domain.Clock
	entries map[K]entry[V]
}

// New creates an empty cache. A nil clock uses the system clock.
func New[K comparable, V any](clock domain.Clock) *EntityCache[K, V] {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &EntityCache[K, V]{
		clock:   clock,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the value for key if present and unexpired.
func (c *EntityCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !e.validAt(c.clock.Now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry.
func (c *EntityCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now(), ttl: ttl}
}

// Invalidate removes key.
func (c *EntityCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateFunc removes every key for which match returns true.
func (c *EntityCache[K, V]) InvalidateFunc(match func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll empties the cache.
func (c *EntityCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len counts stored entries, expired ones included.
func (c *EntityCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StoredAt returns when key was stored, if it is present and unexpired.
func (c *EntityCache[K, V]) StoredAt(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.validAt(c.clock.Now()) {
		return time.Time{}, false
	}
	return e.storedAt, true
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int
	Valid   int
	Oldest  time.Duration
	Newest  time.Duration
}

// Stats reports entry counts and the age of the oldest and newest entries.
// It does not evict.
func (c *EntityCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	s := Stats{Entries: len(c.entries)}
	first := true
	for _, e := range c.entries {
		if e.validAt(now) {
			s.Valid++
		}
		age := now.Sub(e.storedAt)
		if first || age > s.Oldest {
			s.Oldest = age
		}
		if first || age < s.Newest {
			s.Newest = age
		}
		first = false
	}
	return s
}
