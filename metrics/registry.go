package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the metric namespace shared by every component in this module.
const Namespace = "derivation"

// Shared histogram buckets.
var (
	// CountBuckets covers small discrete counts (frames, batches, blocks).
	CountBuckets = prometheus.ExponentialBuckets(1, 2, 16)

	// SizeBuckets covers payload sizes from 64B up to ~256MB.
	SizeBuckets = prometheus.ExponentialBuckets(64, 4, 12)

	// DurationBuckets covers sub-millisecond decode paths up to seconds.
	DurationBuckets = prometheus.ExponentialBuckets(0.0001, 4, 10)
)

// ComponentRegistry pins every metric it creates to the module namespace and
// a per-component subsystem, backed by its own prometheus registry so
// components can be constructed repeatedly (e.g. in tests) without
// duplicate-registration panics.
type ComponentRegistry struct {
	namespace string
	subsystem string
	registry  *prometheus.Registry
}

// NewComponentRegistry creates a registry for one component.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	if namespace == "" {
		namespace = Namespace
	}
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		registry:  prometheus.NewRegistry(),
	}
}

// Registry exposes the underlying prometheus registry for scraping.
func (r *ComponentRegistry) Registry() *prometheus.Registry {
	return r.registry
}

// Gatherer exposes the registry as a prometheus.Gatherer.
func (r *ComponentRegistry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// NewCounter creates and registers a counter.
func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounter(opts)
	r.registry.MustRegister(c)
	return c
}

// NewCounterVec creates and registers a counter vector.
func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounterVec(opts, labels)
	r.registry.MustRegister(c)
	return c
}

// NewGauge creates and registers a gauge.
func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGauge(opts)
	r.registry.MustRegister(g)
	return g
}

// NewGaugeVec creates and registers a gauge vector.
func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGaugeVec(opts, labels)
	r.registry.MustRegister(g)
	return g
}

// NewHistogram creates and registers a histogram.
func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	h := prometheus.NewHistogram(opts)
	r.registry.MustRegister(h)
	return h
}

// NewHistogramVec creates and registers a histogram vector.
func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace = r.namespace
	opts.Subsystem = r.subsystem
	h := prometheus.NewHistogramVec(opts, labels)
	r.registry.MustRegister(h)
	return h
}
