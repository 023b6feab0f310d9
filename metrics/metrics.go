// Package metrics exposes Prometheus collectors for the ledgers, the hub
// and the HTTP layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the server records into.
type Metrics struct {
	registry *prometheus.Registry

	// LedgerOps counts ledger operations by operation and result code
	LedgerOps *prometheus.CounterVec

	// EventsDelivered counts frames handed to a subscriber, by event
	EventsDelivered *prometheus.CounterVec

	// EventsDropped counts publishes that reached nobody, by event
	EventsDropped *prometheus.CounterVec

	SubscribersEvicted prometheus.Counter
	WSConnections      prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	OrphanBlobs prometheus.Counter
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LedgerOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chuckafile_ledger_operations_total",
			Help: "Ledger operations by operation and result code",
		}, []string{"operation", "result"}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chuckafile_events_delivered_total",
			Help: "Real-time frames delivered to subscribers by event",
		}, []string{"event"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chuckafile_events_dropped_total",
			Help: "Real-time publishes with no subscriber by event",
		}, []string{"event"}),
		SubscribersEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chuckafile_subscribers_evicted_total",
			Help: "Subscribers dropped because their send buffer was full",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chuckafile_websocket_connections",
			Help: "Open websocket connections",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chuckafile_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chuckafile_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"route"}),
		OrphanBlobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "chuckafile_orphan_blobs_total",
			Help: "Blobs left behind by a failed upload compensation",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLedger records one ledger call.
func (m *Metrics) ObserveLedger(operation, result string) {
	if m == nil {
		return
	}
	m.LedgerOps.WithLabelValues(operation, result).Inc()
}

// ObserveHTTP records one finished HTTP request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, http.StatusText(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
