// Package config provides the CoreContext construction bundle threaded into
// every subsystem, replacing the globals/singletons (lazy_static topics,
// global allocators) the original source relied on with explicit
// constructor parameters, per the design notes.
package config

import (
	"time"

	"github.com/ruvnet/daa-sub007/log"
	"github.com/ruvnet/daa-sub007/metrics"
)

// Clock abstracts time so tests can control both the monotonic tick source
// used for timeouts/backoff and the wall-clock source used only for signed
// timestamps, per the concurrency model's timer discipline.
type Clock interface {
	// Now returns the current wall-clock time, used only for signed
	// timestamps (envelope creation time, vote casting time, etc).
	Now() time.Time
	// Monotonic returns a monotonic instant suitable for measuring
	// durations and driving timeouts.
	Monotonic() time.Time
}

// SystemClock is the default Clock backed by the OS clock. time.Time
// carries a monotonic reading alongside wall-clock on supported platforms,
// so Now and Monotonic share an implementation here.
type SystemClock struct{}

func (SystemClock) Now() time.Time       { return time.Now() }
func (SystemClock) Monotonic() time.Time { return time.Now() }

// CoreContext bundles the cross-cutting dependencies every subsystem
// constructor accepts: logger, metrics registerer and clock. Subsystem-
// specific configuration (tip selection parameters, trainer config, NAT
// server lists, ...) lives alongside each subsystem's own package and is
// passed in addition to CoreContext, not folded into it, since the cores
// don't share a schema for it.
type CoreContext struct {
	Log     log.Logger
	Metrics *metrics.Registry
	Clock   Clock

	// NodeID is this node's own identity, set once at startup.
	NodeID [32]byte
}

// New builds a CoreContext with sane defaults for any field left zero:
// a no-op logger, a fresh metrics registry and the system clock.
func New(l log.Logger, m *metrics.Registry, c Clock) *CoreContext {
	if l == nil {
		l = log.NewNoOp()
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	if c == nil {
		c = SystemClock{}
	}
	return &CoreContext{Log: l, Metrics: m, Clock: c}
}
