// Package metrics exposes labqms counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labqms"

// Identifier kinds.
const (
	KindNonConformity    = "nc"
	KindCorrectiveAction = "hdkp"
	KindPreventiveAction = "hdpn"
)

// Allocation modes.
const (
	ModeSingle = "single"
	ModeBulk   = "bulk"
)

// Metrics owns a private registry so tests can create as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	identifiers      *prometheus.CounterVec
	allocationErrors *prometheus.CounterVec
	closures         prometheus.Counter
	reopenings       prometheus.Counter
	backups          *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers all collectors, including the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		identifiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifiers_allocated_total",
			Help:      "Tracking codes assigned, by kind and allocation mode.",
		}, []string{"kind", "mode"}),
		allocationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_errors_total",
			Help:      "Failed identifier allocations, by reason.",
		}, []string{"reason"}),
		closures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonconformity_closures_total",
			Help:      "Saves that moved a non-conformity into the closed state.",
		}),
		reopenings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonconformity_reopenings_total",
			Help:      "Saves that moved a closed non-conformity out of the closed state.",
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_operations_total",
			Help:      "Backup operations, by operation and result.",
		}, []string{"operation", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.identifiers,
		m.allocationErrors,
		m.closures,
		m.reopenings,
		m.backups,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IdentifiersAllocated(kind, mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.identifiers.WithLabelValues(kind, mode).Add(float64(n))
}

func (m *Metrics) AllocationFailed(reason string) {
	if m == nil {
		return
	}
	m.allocationErrors.WithLabelValues(reason).Inc()
}

// StatusChanged records closure transitions between two saved states.
func (m *Metrics) StatusChanged(wasClosed, isClosed bool) {
	if m == nil || wasClosed == isClosed {
		return
	}
	if isClosed {
		m.closures.Inc()
		return
	}
	m.reopenings.Inc()
}

func (m *Metrics) BackupOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.backups.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
