// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe registry of open sessions.

package session

import (
	"hash/fnv"
	"sync"

	"github.com/momentics/wsengine/api"
)

// Registry maps session IDs to values across independently locked shards.
type Registry[V any] struct {
	shards []*shard[V]
	mask   uint32
}

type shard[V any] struct {
	mu       sync.RWMutex
	sessions map[string]V
}

// NewRegistry constructs a sharded registry with shardCount shards.
func NewRegistry[V any](shardCount int) *Registry[V] {
	if shardCount <= 0 {
		shardCount = 16
	}
	// find power-of-two shards for bitmasking
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard[V], m)
	for i := range shards {
		shards[i] = &shard[V]{sessions: make(map[string]V)}
	}
	return &Registry[V]{shards: shards, mask: m - 1}
}

func (r *Registry[V]) shard(id string) *shard[V] {
	return r.shards[fnv32(id)&r.mask]
}

// Add registers v under id; an existing id is rejected.
func (r *Registry[V]) Add(id string, v V) error {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; ok {
		return api.ErrAlreadyExists
	}
	sh.sessions[id] = v
	return nil
}

// Get fetches a value if present.
func (r *Registry[V]) Get(id string) (V, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.sessions[id]
	return v, ok
}

// Delete removes id and returns the value it held.
func (r *Registry[V]) Delete(id string) (V, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	return v, ok
}

// Range applies fn to a snapshot of every entry; fn may modify the registry.
func (r *Registry[V]) Range(fn func(id string, v V)) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		ids := make([]string, 0, len(sh.sessions))
		vals := make([]V, 0, len(sh.sessions))
		for id, v := range sh.sessions {
			ids = append(ids, id)
			vals = append(vals, v)
		}
		sh.mu.RUnlock()
		for i := range ids {
			fn(ids[i], vals[i])
		}
	}
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
