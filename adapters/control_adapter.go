// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control using control package primitives.

package adapters

import (
	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/control"
)

// ControlAdapter bundles config, metrics and probes behind api.Control.
type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter returns an adapter with platform probes registered.
func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	if cfg == nil {
		return api.ErrInvalidArgument
	}
	return c.config.SetConfig(cfg)
}

// RegisterConfigKey installs the validator applied to key on SetConfig.
func (c *ControlAdapter) RegisterConfigKey(key string, v control.Validator) {
	c.config.RegisterKey(key, v)
}

// Stats merges metrics with probe output; probe keys get a "debug." prefix.
func (c *ControlAdapter) Stats() map[string]any {
	stats := c.metrics.GetSnapshot()
	debugStats := c.debug.DumpState()
	combined := make(map[string]any, len(stats)+len(debugStats))
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range debugStats {
		combined["debug."+k] = v
	}
	return combined
}

func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(fn)
}

func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

// Incr bumps a counter metric.
func (c *ControlAdapter) Incr(key string, delta int64) {
	c.metrics.Add(key, delta)
}

// Counter reads a counter metric without building a full snapshot.
func (c *ControlAdapter) Counter(key string) int64 {
	return c.metrics.Counter(key)
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}
