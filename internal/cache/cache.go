// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package cache provides a thread-safe in-memory TTL cache used to
// memoize similarity recall results. The cache is best-effort: entries
// expire lazily on read and in a periodic background sweep.
package cache

import (
	"sync"
	"time"
)

// Entry represents a cached item with expiration.
type Entry struct {
	Data      any
	ExpiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int64
}

// Cache is a thread-safe in-memory cache with per-cache TTL.
// Cached values are shared between callers; treat them as read-only.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration

	statsMu sync.Mutex
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache with the given TTL and starts the background sweep.
// Call Close to stop the sweep goroutine.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached value for key, or false if absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.recordMiss()
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have replaced it.
		if cur, still := c.entries[key]; still && time.Now().After(cur.ExpiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return entry.Data, true
}

// Set stores a value under key with the cache's TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = Entry{Data: value, ExpiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s := c.stats
	s.Keys = int64(c.Len())
	return s
}

// Close stops the background sweep goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

// sweep periodically removes expired entries.
func (c *Cache) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			var evicted int64

			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.ExpiresAt) {
					delete(c.entries, key)
					evicted++
				}
			}
			c.mu.Unlock()

			c.statsMu.Lock()
			c.stats.Evictions += evicted
			c.statsMu.Unlock()
		}
	}
}
