package statecache

import (
	"sync"
)

// Strategy decides whether a successful device write updates the cache
// immediately or waits for the device to echo the change as an event.
type Strategy int

const (
	// Eventual leaves the cache untouched; an event updates it later.
	Eventual Strategy = iota
	// Optimistic updates the cache as soon as the device accepts the write.
	Optimistic
)

// String returns the strategy name.
func (s Strategy) String() string {
	if s == Optimistic {
		return "optimistic"
	}
	return "eventual"
}

// Cache is a mutex-guarded map of device state.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
}

// New returns an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]V)}
}

// Replace swaps the whole content for a copy of entries.
func (c *Cache[K, V]) Replace(entries map[K]V) {
	fresh := make(map[K]V, len(entries))
	for k, v := range entries {
		fresh[k] = v
	}
	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()
}

// Put stores v under key.
func (c *Cache[K, V]) Put(key K, v V) {
	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
}

// Get returns a copy of the value under key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Update applies fn to the value under key while holding the lock and
// returns the value before and after. It returns false without calling fn
// when key is absent.
func (c *Cache[K, V]) Update(key K, fn func(v *V)) (before, after V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return before, after, false
	}
	before = v
	fn(&v)
	c.entries[key] = v
	return before, v, true
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of every entry.
func (c *Cache[K, V]) Snapshot() map[K]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[K]V, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]V)
	c.mu.Unlock()
}
