// Package cache provides a small in-memory TTL cache used for
// client settlement configs, which are read on every batch creation
// but change rarely.
package cache

import (
	"sync"
	"time"
)

type item[T any] struct {
	val      T
	deadline time.Time
}

// InMemory is a generic TTL cache safe for concurrent use.
type InMemory[T any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]item[T]
}

// New returns a cache whose entries expire after ttl. A background
// sweeper reclaims expired entries so the map does not grow unbounded
// under churning keys.
func New[T any](ttl time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		ttl: ttl,
		m:   make(map[string]item[T]),
	}
	go c.sweep()
	return c
}

// Get returns the cached value for key, or false if absent or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	it, ok := c.m[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(it.deadline) {
		var zero T
		return zero, false
	}
	return it.val, true
}

// Set stores val under key with the cache's TTL.
func (c *InMemory[T]) Set(key string, val T) {
	c.mu.Lock()
	c.m[key] = item[T]{val: val, deadline: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete evicts key. Deleting an absent key is a no-op.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *InMemory[T]) sweep() {
	t := time.NewTicker(c.ttl)
	defer t.Stop()

	for now := range t.C {
		c.mu.Lock()
		for k, it := range c.m {
			if now.After(it.deadline) {
				delete(c.m, k)
			}
		}
		c.mu.Unlock()
	}
}
