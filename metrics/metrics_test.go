package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterIsReusedAcrossCalls(t *testing.T) {
	r := NewRegistry("test")
	c1 := r.Counter("widgets_total", "widgets processed")
	c2 := r.Counter("widgets_total", "widgets processed")
	require.Same(t, c1, c2, "registering the same metric name twice must return the same vector")
}

func TestGaugeAndHistogramAreRegistered(t *testing.T) {
	r := NewRegistry("test")
	r.Gauge("queue_depth", "items queued").WithLabelValues().Set(3)
	r.Histogram("latency_ms", "request latency").WithLabelValues().Observe(12)

	mf, err := r.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range mf {
		names[f.GetName()] = true
	}
	require.True(t, names["test_queue_depth"])
	require.True(t, names["test_latency_ms"])
}

func TestNewRegistryDefaultsNamespace(t *testing.T) {
	r := NewRegistry()
	r.Counter("events_total", "events").WithLabelValues().Inc()
	mf, err := r.Gatherer().Gather()
	require.NoError(t, err)
	require.Equal(t, "daanet_events_total", mf[0].GetName())
}
