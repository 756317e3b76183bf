// Package metrics exposes the UA server's Prometheus metrics.
//
// Metrics implements plugin.Observer (module lifecycle, rollbacks, events,
// data-source errors) and server.Observer (handoff outcomes, queue depth).
// It also implements api.RequestObserver for the HTTP API. Handler serves
// the registry for GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_ua"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	moduleTransitions *prometheus.CounterVec
	activeModules     prometheus.Gauge
	rollbackFailures  *prometheus.CounterVec
	eventsHandled     *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	dataSourceErrors  *prometheus.CounterVec
	handoffs          *prometheus.CounterVec
	queueDepth        prometheus.Gauge
	httpRequests      *prometheus.HistogramVec
}

// New creates the collectors, including the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		moduleTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_transitions_total",
			Help:      "Module lifecycle transitions by action",
		}, []string{"module", "action"}),
		activeModules: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "modules_active",
			Help:      "Number of active capability modules",
		}),
		rollbackFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollback_failures_total",
			Help:      "Construction rollbacks that left residue",
		}, []string{"module"}),
		eventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_handled_total",
			Help:      "Device events applied to module state",
		}, []string{"module"}),
		eventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_dropped_total",
			Help:      "Device events dropped by reason",
		}, []string{"module", "reason"}),
		dataSourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_source_errors_total",
			Help:      "Client reads and writes that failed in a data source",
		}, []string{"module", "property", "status"}),
		handoffs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Work handed to the server goroutine by outcome",
		}, []string{"outcome"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handoff_queue_depth",
			Help:      "Work items waiting for the server goroutine",
		}),
		httpRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API requests by route pattern, method and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ModuleState counts a lifecycle transition and tracks the active gauge.
func (m *Metrics) ModuleState(module, action string) {
	m.moduleTransitions.WithLabelValues(module, action).Inc()
	switch action {
	case "activated":
		m.activeModules.Inc()
	case "unloaded":
		m.activeModules.Dec()
	}
}

// RollbackFailed counts a construction rollback that left residue.
func (m *Metrics) RollbackFailed(module string) {
	m.rollbackFailures.WithLabelValues(module).Inc()
}

// EventHandled counts a device event a module applied.
func (m *Metrics) EventHandled(module string) {
	m.eventsHandled.WithLabelValues(module).Inc()
}

// EventDropped counts a device event a module dropped.
func (m *Metrics) EventDropped(module, reason string) {
	m.eventsDropped.WithLabelValues(module, reason).Inc()
}

// DataSourceError counts a failed data-source read or write.
func (m *Metrics) DataSourceError(module, property, status string) {
	m.dataSourceErrors.WithLabelValues(module, property, status).Inc()
}

// Handoff counts a Post outcome.
func (m *Metrics) Handoff(outcome string) {
	m.handoffs.WithLabelValues(outcome).Inc()
}

// QueueDepth records the handoff queue length.
func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// HTTPRequest observes one API request. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
