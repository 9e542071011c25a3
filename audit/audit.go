// Package audit implements X2: the metrics/audit sink cores emit
// structured events, health snapshots and per-round metrics to. Grounded
// on luxfi-consensus/telemetry/metrics.go's minimal Counter/Gauge trait
// idiom, generalized from bare numeric instruments to the
// {type, source, data, ts, metadata} structured-event shape spec.md §6
// names, and backed by config.CoreContext's metrics.Registry instead of
// package-level globals.
package audit

import (
	"time"

	"github.com/ruvnet/daa-sub007/config"
)

// Event is one structured audit/telemetry event, per §6's "Produced to
// external collaborators" interface.
type Event struct {
	Type     string
	Source   string
	Data     map[string]any
	Ts       time.Time
	Metadata map[string]string
}

// HealthSnapshot is a point-in-time health summary of one subsystem.
type HealthSnapshot struct {
	Source   string
	Healthy  bool
	Detail   string
	Ts       time.Time
}

// RoundMetrics is the per-round numeric summary T1-T3 and D1-D4 report.
type RoundMetrics struct {
	Source     string
	Round      uint64
	DurationMs int64
	Ts         time.Time
}

// Sink is the trait-level collaborator every core emits audit events to.
// A concrete binding (log shipping, an event bus, a dashboard feed) plugs
// in here; this package ships one binding over config.CoreContext's
// logger and metrics registry.
type Sink interface {
	Event(e Event)
	Health(h HealthSnapshot)
	Round(r RoundMetrics)
}

// CoreContextSink is the bundled Sink binding: events are logged
// structurally, health snapshots update a gauge per source, and round
// metrics update a counter and a duration histogram per source.
type CoreContextSink struct {
	ctx *config.CoreContext
}

// NewCoreContextSink builds a Sink backed by ctx's logger and metrics
// registry. ctx must not be nil.
func NewCoreContextSink(ctx *config.CoreContext) *CoreContextSink {
	return &CoreContextSink{ctx: ctx}
}

func (s *CoreContextSink) Event(e Event) {
	fields := make([]interface{}, 0, 4+2*len(e.Data)+2*len(e.Metadata))
	fields = append(fields, "type", e.Type, "source", e.Source)
	for k, v := range e.Data {
		fields = append(fields, "data."+k, v)
	}
	for k, v := range e.Metadata {
		fields = append(fields, "meta."+k, v)
	}
	s.ctx.Log.Info("audit event", fields...)
}

func (s *CoreContextSink) Health(h HealthSnapshot) {
	healthGauge := s.ctx.Metrics.Gauge("health_status", "1 if the source is healthy, 0 otherwise", "source")
	val := float64(0)
	if h.Healthy {
		val = 1
	}
	healthGauge.WithLabelValues(h.Source).Set(val)
	if !h.Healthy {
		s.ctx.Log.Warn("unhealthy subsystem", "source", h.Source, "detail", h.Detail)
	}
}

func (s *CoreContextSink) Round(r RoundMetrics) {
	roundCounter := s.ctx.Metrics.Counter("rounds_total", "completed rounds per source", "source")
	roundCounter.WithLabelValues(r.Source).Inc()

	durationHistogram := s.ctx.Metrics.Histogram("round_duration_ms", "per-round wall time in milliseconds", "source")
	durationHistogram.WithLabelValues(r.Source).Observe(float64(r.DurationMs))
}

// NoOpSink discards every event, for tests and components that run
// without an audit collaborator wired in.
type NoOpSink struct{}

func (NoOpSink) Event(Event)               {}
func (NoOpSink) Health(HealthSnapshot)     {}
func (NoOpSink) Round(RoundMetrics)        {}
