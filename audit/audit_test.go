package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/metrics"
)

func testContext() *config.CoreContext {
	return config.New(nil, metrics.NewRegistry("test"), nil)
}

func TestEventLogsWithoutPanicking(t *testing.T) {
	ctx := testContext()
	sink := NewCoreContextSink(ctx)
	require.NotPanics(t, func() {
		sink.Event(Event{Type: "vertex_added", Source: "dag", Ts: time.Now(), Data: map[string]any{"height": 1}})
	})
}

func TestHealthUpdatesGauge(t *testing.T) {
	ctx := testContext()
	sink := NewCoreContextSink(ctx)
	sink.Health(HealthSnapshot{Source: "training", Healthy: true, Ts: time.Now()})

	mf, err := ctx.Metrics.Gatherer().Gather()
	require.NoError(t, err)
	require.True(t, containsMetric(mf, "test_health_status"))
}

func TestRoundIncrementsCounterAndHistogram(t *testing.T) {
	ctx := testContext()
	sink := NewCoreContextSink(ctx)
	sink.Round(RoundMetrics{Source: "allreduce", Round: 1, DurationMs: 42, Ts: time.Now()})

	mf, err := ctx.Metrics.Gatherer().Gather()
	require.NoError(t, err)
	require.True(t, containsMetric(mf, "test_rounds_total"))
	require.True(t, containsMetric(mf, "test_round_duration_ms"))
}

func TestNoOpSinkDiscardsEverything(t *testing.T) {
	var s NoOpSink
	require.NotPanics(t, func() {
		s.Event(Event{})
		s.Health(HealthSnapshot{})
		s.Round(RoundMetrics{})
	})
}

func containsMetric(mf []*dto.MetricFamily, name string) bool {
	for _, f := range mf {
		if f.GetName() == name {
			return true
		}
	}
	return false
}
