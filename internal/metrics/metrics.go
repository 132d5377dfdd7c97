package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "booksearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "search_requests_total",
		Help:      "Total search invocations by provider and result source.",
	}, []string{"provider", "source"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "provider_requests_total",
		Help:      "Total requests to catalog providers by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "booksearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Catalog provider request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider"})

	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "booksearch",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half_open).",
	}, []string{"provider"})

	BreakerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions by provider and target state.",
	}, []string{"provider", "state"})

	BreakerRejectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "breaker_rejects_total",
		Help:      "Calls rejected by an open circuit breaker.",
	}, []string{"provider"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "cache_hits_total",
		Help:      "Search cache hits by tier (fast or durable).",
	}, []string{"tier"})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "cache_misses_total",
		Help:      "Search cache double-tier misses.",
	})

	CacheLockWaitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "cache_lock_waits_total",
		Help:      "Callers that waited on another in-flight fetch for the same cache key.",
	})

	CacheSweepRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "booksearch",
		Name:      "cache_sweep_removed_total",
		Help:      "Expired durable-tier entries removed by the periodic sweep.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchRequestsTotal,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		BreakerState,
		BreakerTransitionsTotal,
		BreakerRejectsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheLockWaitsTotal,
		CacheSweepRemovedTotal,
	)
}
