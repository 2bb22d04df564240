// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, configuration control, and debug introspection for
// endpoints.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads with reload listeners
//   - Counters and gauges for frame and session telemetry
//   - Debug hooks and probe registration
//
// Platform probes are build-tag-partitioned.
package control
