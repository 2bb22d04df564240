// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named probes evaluated on demand when endpoint stats are read.

package control

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]func() any)}
}

// RegisterProbe inserts or replaces a named probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// RemoveProbe drops a named probe.
func (dp *DebugProbes) RemoveProbe(name string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	delete(dp.probes, name)
}

// Names returns the registered probe names, sorted.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	names := make([]string, 0, len(dp.probes))
	for k := range dp.probes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DumpState evaluates every probe without holding the registry lock, so a
// probe may register others. A panicking probe reports its panic value as
// a string instead of failing the whole dump.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	probes := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		probes[k] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(probes))
	for k, fn := range probes {
		out[k] = evaluate(k, fn)
	}
	return out
}

func evaluate(name string, fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[control] probe %s panicked: %v", name, r)
			v = fmt.Sprintf("probe panic: %v", r)
		}
	}()
	return fn()
}
