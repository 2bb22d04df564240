// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Runtime-tunable endpoint settings. Keys may carry a validator that
// normalizes raw values (strings from a CLI, float64 from JSON) before
// they are stored; reload listeners only ever see normalized values.

package control

import (
	"errors"
	"fmt"
	"sync"
)

// Validator checks a raw value and returns its normalized form.
type Validator func(v any) (any, error)

// ConfigStore is a key/value map with per-key validation and reload hooks.
type ConfigStore struct {
	mu         sync.RWMutex
	values     map[string]any
	validators map[string]Validator
	listeners  []func()
}

// NewConfigStore returns an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		values:     make(map[string]any),
		validators: make(map[string]Validator),
	}
}

// RegisterKey installs the validator for key. Values already stored under
// key are not re-checked.
func (cs *ConfigStore) RegisterKey(key string, v Validator) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.validators[key] = v
}

// GetSnapshot returns a copy of all values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.values))
	for k, v := range cs.values {
		out[k] = v
	}
	return out
}

// Get returns a single value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.values[key]
	return v, ok
}

// SetConfig validates and merges update. Rejected keys are left untouched
// and reported together; the accepted ones are stored and the reload
// listeners run once, synchronously, after the lock is released.
func (cs *ConfigStore) SetConfig(update map[string]any) error {
	var errs []error
	cs.mu.Lock()
	changed := 0
	for k, raw := range update {
		v := raw
		if validate, ok := cs.validators[k]; ok {
			var err error
			if v, err = validate(raw); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				continue
			}
		}
		cs.values[k] = v
		changed++
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()

	if changed > 0 {
		for _, fn := range listeners {
			fn()
		}
	}
	return errors.Join(errs...)
}

// OnReload registers a listener called after accepted changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
