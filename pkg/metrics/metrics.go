// Package metrics provides metrics implementations for usergrid
package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memtensor/usergrid/pkg/interfaces"
)

// NoOpMetrics is a no-operation metrics implementation
type NoOpMetrics struct{}

// Counter increments a counter metric
func (m *NoOpMetrics) Counter(name string, value float64, labels map[string]string) {}

// Gauge sets a gauge metric
func (m *NoOpMetrics) Gauge(name string, value float64, labels map[string]string) {}

// Histogram records a histogram metric
func (m *NoOpMetrics) Histogram(name string, value float64, labels map[string]string) {}

// Timer records timing metrics
func (m *NoOpMetrics) Timer(name string, duration float64, labels map[string]string) {}

// PrometheusMetrics creates collectors on first use. The label names of a
// metric are fixed by its first observation; later observations supply
// values for those names and any extra labels are dropped.
type PrometheusMetrics struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*vec[*prometheus.CounterVec]
	gauges     map[string]*vec[*prometheus.GaugeVec]
	histograms map[string]*vec[*prometheus.HistogramVec]
}

type vec[V any] struct {
	v      V
	labels []string
}

var _ interfaces.Metrics = (*NoOpMetrics)(nil)
var _ interfaces.Metrics = (*PrometheusMetrics)(nil)

// NewNoOpMetrics creates a new no-op metrics implementation
func NewNoOpMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}

// NewPrometheusMetrics creates a Prometheus backed implementation with its own registry
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &PrometheusMetrics{
		namespace:  namespace,
		registry:   registry,
		counters:   make(map[string]*vec[*prometheus.CounterVec]),
		gauges:     make(map[string]*vec[*prometheus.GaugeVec]),
		histograms: make(map[string]*vec[*prometheus.HistogramVec]),
	}
}

// NewTestMetrics creates a metrics implementation for testing
func NewTestMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}

// Registry returns the underlying registry
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Counter increments a counter metric
func (m *PrometheusMetrics) Counter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		names := labelNames(labels)
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
		}, names)
		if err := m.registry.Register(cv); err != nil {
			m.mu.Unlock()
			return
		}
		c = &vec[*prometheus.CounterVec]{v: cv, labels: names}
		m.counters[name] = c
	}
	m.mu.Unlock()

	c.v.WithLabelValues(labelValues(c.labels, labels)...).Add(value)
}

// Gauge sets a gauge metric
func (m *PrometheusMetrics) Gauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	g, ok := m.gauges[name]
	if !ok {
		names := labelNames(labels)
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
		}, names)
		if err := m.registry.Register(gv); err != nil {
			m.mu.Unlock()
			return
		}
		g = &vec[*prometheus.GaugeVec]{v: gv, labels: names}
		m.gauges[name] = g
	}
	m.mu.Unlock()

	g.v.WithLabelValues(labelValues(g.labels, labels)...).Set(value)
}

// Histogram records a histogram metric
func (m *PrometheusMetrics) Histogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	h, ok := m.histograms[name]
	if !ok {
		names := labelNames(labels)
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
			Buckets:   prometheus.DefBuckets,
		}, names)
		if err := m.registry.Register(hv); err != nil {
			m.mu.Unlock()
			return
		}
		h = &vec[*prometheus.HistogramVec]{v: hv, labels: names}
		m.histograms[name] = h
	}
	m.mu.Unlock()

	h.v.WithLabelValues(labelValues(h.labels, labels)...).Observe(value)
}

// Timer records a duration in seconds
func (m *PrometheusMetrics) Timer(name string, duration float64, labels map[string]string) {
	m.Histogram(name, duration, labels)
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}
	return values
}
