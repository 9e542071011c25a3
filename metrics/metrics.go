// Package metrics wraps a Prometheus registerer/gatherer pair into the
// single object CoreContext threads into every subsystem, grounded on the
// teacher's api/metrics package and its prometheus/client_golang
// dependency.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry owns a namespaced Prometheus registerer. Subsystems call
// Counter/Gauge/Histogram to lazily register and fetch their own metrics,
// rather than reaching for a package-level global.
type Registry struct {
	namespace string
	reg       *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewRegistry builds an empty registry under the given namespace; with no
// namespace, or an empty one, it uses "daanet". A nil Registry is never
// returned; callers needing the
// underlying prometheus.Registry for an HTTP exporter use Gatherer().
func NewRegistry(namespace ...string) *Registry {
	ns := "daanet"
	if len(namespace) > 0 && namespace[0] != "" {
		ns = namespace[0]
	}
	return &Registry{
		namespace:  ns,
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Gatherer exposes the underlying registry for wiring into an HTTP
// /metrics handler; out of scope for the cores themselves (§6).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Counter returns (creating on first use) a CounterVec with the given name,
// help text and label names.
func (r *Registry) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(c)
	r.counters[name] = c
	return c
}

// Gauge returns (creating on first use) a GaugeVec.
func (r *Registry) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(g)
	r.gauges[name] = g
	return g
}

// Histogram returns (creating on first use) a HistogramVec with the default
// Prometheus bucket ladder.
func (r *Registry) Histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
	r.reg.MustRegister(h)
	r.histograms[name] = h
	return h
}
