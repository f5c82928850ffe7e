// Package telemetry provides observability primitives for stash.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	CacheLookupDuration *prometheus.HistogramVec
	CacheEntries        *prometheus.GaugeVec
	CacheStoreErrors    *prometheus.CounterVec
	OriginDuration      *prometheus.HistogramVec
	OriginErrors        *prometheus.CounterVec
	OriginRejected      *prometheus.CounterVec
	SweptEntries        prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by cache result (hit, miss, none).",
		}, []string{"method", "path", "status", "cache"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "stash",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stash",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits.",
		}, []string{"route"}),

		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses.",
		}, []string{"route"}),

		CacheLookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "stash",
			Name:                            "cache_lookup_duration_seconds",
			Help:                            "Time spent checking the response cache.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"route", "result"}),

		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stash",
			Name:      "cache_entries",
			Help:      "Live entries per cache, as last sampled.",
		}, []string{"route"}),

		CacheStoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "cache_store_errors_total",
			Help:      "Total failed writes of captured responses.",
		}, []string{"route"}),

		OriginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "stash",
			Name:                            "origin_duration_seconds",
			Help:                            "Origin fetch duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"route"}),

		OriginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "origin_errors_total",
			Help:      "Total failed origin fetches.",
		}, []string{"route"}),

		OriginRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "origin_breaker_rejections_total",
			Help:      "Total cache misses refused because the origin breaker was open.",
		}, []string{"route"}),

		SweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "swept_entries_total",
			Help:      "Total expired entries removed by the sweeper.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.CacheHits,
		m.CacheMisses,
		m.CacheLookupDuration,
		m.CacheEntries,
		m.CacheStoreErrors,
		m.OriginDuration,
		m.OriginErrors,
		m.OriginRejected,
		m.SweptEntries,
	)

	return m
}

// CacheObservers returns hit and miss callbacks for the named route that
// count the event and record the lookup time.
func (m *Metrics) CacheObservers(route string) (onHit, onMiss func(string, time.Duration)) {
	hits := m.CacheHits.WithLabelValues(route)
	misses := m.CacheMisses.WithLabelValues(route)
	hitDur := m.CacheLookupDuration.WithLabelValues(route, "hit")
	missDur := m.CacheLookupDuration.WithLabelValues(route, "miss")

	onHit = func(_ string, elapsed time.Duration) {
		hits.Inc()
		hitDur.Observe(elapsed.Seconds())
	}
	onMiss = func(_ string, elapsed time.Duration) {
		misses.Inc()
		missDur.Observe(elapsed.Seconds())
	}
	return onHit, onMiss
}
