// Package metrics holds the Prometheus instruments of one Backend. Every
// Backend owns a private registry so several backends can live in one
// process, which tests rely on.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "backplane"

// Metrics contains the wiring runtime instruments.
type Metrics struct {
	registry *prometheus.Registry

	BackendState         prometheus.Gauge
	ServicesInstantiated *prometheus.CounterVec
	InstantiationSeconds *prometheus.HistogramVec
	InitDuration         *prometheus.HistogramVec
	InitFailures         *prometheus.CounterVec
	HookFailures         *prometheus.CounterVec
}

// New creates and registers the instruments. backendID is attached to every
// series as a constant label.
func New(backendID string) *Metrics {
	labels := prometheus.Labels{"backend_id": backendID}
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BackendState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "backend",
			Name:        "state",
			Help:        "Backend state (0=created, 1=starting, 2=running, 3=stopping, 4=stopped, 5=failed)",
			ConstLabels: labels,
		}),

		ServicesInstantiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "services",
			Name:        "instantiated_total",
			Help:        "Total number of service instances created",
			ConstLabels: labels,
		}, []string{"scope"}),

		InstantiationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "services",
			Name:        "instantiation_duration_seconds",
			Help:        "Time spent inside service factories",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"service"}),

		InitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "features",
			Name:        "init_duration_seconds",
			Help:        "Time spent inside plugin and module init functions",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"kind", "plugin"}),

		InitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "features",
			Name:        "init_failures_total",
			Help:        "Total number of failed init functions",
			ConstLabels: labels,
		}, []string{"kind", "plugin"}),

		HookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "lifecycle",
			Name:        "hook_failures_total",
			Help:        "Total number of failed lifecycle hooks",
			ConstLabels: labels,
		}, []string{"phase"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BackendState,
		m.ServicesInstantiated,
		m.InstantiationSeconds,
		m.InitDuration,
		m.InitFailures,
		m.HookFailures,
	)
	return m
}

// Registry returns the backend's private registry. Plugins may register
// their own collectors on it.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordState sets the backend state gauge.
func (m *Metrics) RecordState(state int) {
	m.BackendState.Set(float64(state))
}

// RecordInstantiation counts one service instance.
func (m *Metrics) RecordInstantiation(serviceID, scope string, elapsed time.Duration) {
	m.ServicesInstantiated.WithLabelValues(scope).Inc()
	m.InstantiationSeconds.WithLabelValues(serviceID).Observe(elapsed.Seconds())
}

// RecordInit observes one init call.
func (m *Metrics) RecordInit(kind, pluginID string, elapsed time.Duration, err error) {
	m.InitDuration.WithLabelValues(kind, pluginID).Observe(elapsed.Seconds())
	if err != nil {
		m.InitFailures.WithLabelValues(kind, pluginID).Inc()
	}
}

// RecordHookFailure counts a failed startup or shutdown hook.
func (m *Metrics) RecordHookFailure(phase string) {
	m.HookFailures.WithLabelValues(phase).Inc()
}
