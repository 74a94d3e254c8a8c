package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Search Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursedex",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"target", "path"}, // target: courses/categories, path: fast/fuzzy/empty/cancelled/error
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursedex",
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds, excluding HTTP overhead",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"target"},
	)
)

// Catalog Prometheus metrics.
var (
	CatalogCourses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coursedex",
			Name:      "catalog_courses",
			Help:      "Number of courses in the current catalog snapshot",
		},
	)

	CatalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursedex",
			Name:      "catalog_reloads_total",
			Help:      "Catalog reloads by result",
		},
		[]string{"result"}, // "ok" / "missing" / "error"
	)
)

// Counter protocol Prometheus metrics.
var (
	CounterEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursedex",
			Name:      "counter_events_total",
			Help:      "Lifecycle events processed by the counter protocol",
		},
		[]string{"event", "result"}, // result: "ok" / "failed"
	)

	CounterTxAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursedex",
			Name:      "counter_tx_attempts_total",
			Help:      "Counter transaction attempts by result",
		},
		[]string{"result"}, // "committed" / "conflict" / "error"
	)

	CounterDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursedex",
			Name:      "counter_dropped_total",
			Help:      "Counter updates dropped after exhausting retries",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// RegisterDomainMetrics registers search, catalog and counter metrics with
// the default registry. Safe to call more than once.
func RegisterDomainMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SearchRequestsTotal)
		prometheus.MustRegister(SearchDuration)
		prometheus.MustRegister(CatalogCourses)
		prometheus.MustRegister(CatalogReloadsTotal)
		prometheus.MustRegister(CounterEventsTotal)
		prometheus.MustRegister(CounterTxAttemptsTotal)
		prometheus.MustRegister(CounterDroppedTotal)
	})
}

// ObserveSearch records one search request and its duration.
func ObserveSearch(target, path string, d time.Duration) {
	SearchRequestsTotal.WithLabelValues(target, path).Inc()
	SearchDuration.WithLabelValues(target).Observe(d.Seconds())
}
