// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Endpoint counters and gauges. Counters are bumped once per frame, so an
// increment only takes the read lock once the key exists.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsRegistry holds int64 counters and arbitrary gauge values.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	gauges   map[string]any
	updated  atomic.Int64 // unix nanoseconds
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*atomic.Int64),
		gauges:   make(map[string]any),
	}
}

// Set stores a gauge value.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.gauges[key] = value
	mr.mu.Unlock()
	mr.touch()
}

// Add increments counter key, creating it at zero, and returns the new value.
func (mr *MetricsRegistry) Add(key string, delta int64) int64 {
	mr.mu.RLock()
	c, ok := mr.counters[key]
	mr.mu.RUnlock()
	if !ok {
		mr.mu.Lock()
		if c, ok = mr.counters[key]; !ok {
			c = new(atomic.Int64)
			mr.counters[key] = c
		}
		mr.mu.Unlock()
	}
	n := c.Add(delta)
	mr.touch()
	return n
}

// Counter returns the current value of counter key.
func (mr *MetricsRegistry) Counter(key string) int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	if c, ok := mr.counters[key]; ok {
		return c.Load()
	}
	return 0
}

func (mr *MetricsRegistry) touch() { mr.updated.Store(time.Now().UnixNano()) }

// Updated returns the time of the last change, zero if none.
func (mr *MetricsRegistry) Updated() time.Time {
	ns := mr.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetSnapshot returns counters (as int64) and gauges in one map. A gauge
// sharing a counter's key is shadowed by the counter.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.counters)+len(mr.gauges))
	for k, v := range mr.gauges {
		out[k] = v
	}
	for k, c := range mr.counters {
		out[k] = c.Load()
	}
	return out
}
