// Package session
// Author: momentics <momentics@gmail.com>
//
// Thread-safe user property store with optional per-key expiry.

package session

import (
	"sync"
	"time"

	"github.com/momentics/wsengine/api"
)

type entry struct {
	val    any
	expiry time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && now.After(e.expiry)
}

// ContextStore implements api.Properties.
type ContextStore struct {
	mu    sync.RWMutex
	store map[string]entry
}

var _ api.Properties = (*ContextStore)(nil)

// NewContextStore creates an empty, thread-safe property store.
func NewContextStore() *ContextStore {
	return &ContextStore{
		store: make(map[string]entry),
	}
}

// Set stores a key-value pair, clearing any expiry.
func (c *ContextStore) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry{val: value}
}

// Get retrieves a value and its existence.
func (c *ContextStore) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e.val, true
}

// Delete removes a key.
func (c *ContextStore) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// WithExpiration sets expiration for an existing key.
func (c *ContextStore) WithExpiration(key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.store[key]; ok {
		e.expiry = time.Now().Add(ttl)
		c.store[key] = e
	}
}

// Keys returns all live keys; expired entries are dropped on the way.
func (c *ContextStore) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(c.store))
	for k, e := range c.store {
		if e.expired(now) {
			delete(c.store, k)
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
