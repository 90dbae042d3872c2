// Package metrics provides Prometheus metrics for the client runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics exposed by the client.
type Collector struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Rate limit metrics
	ThrottleAvailable prometheus.Gauge
	ThrottleMaximum   prometheus.Gauge
	QueryCost         prometheus.Histogram
	ThrottledTotal    prometheus.Counter
}

// New creates a collector with all metrics registered on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphmeter",
				Name:      "requests_total",
				Help:      "Total number of API requests executed",
			},
			[]string{"outcome"},
		),
		RequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "graphmeter",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		RetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "graphmeter",
				Name:      "retries_total",
				Help:      "Total number of retry attempts",
			},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "graphmeter",
				Name:      "cache_hits_total",
				Help:      "Responses served from the cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "graphmeter",
				Name:      "cache_misses_total",
				Help:      "Requests that missed the cache",
			},
		),
		ThrottleAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "graphmeter",
				Name:      "throttle_currently_available",
				Help:      "Tokens currently available in the API's bucket",
			},
		),
		ThrottleMaximum: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "graphmeter",
				Name:      "throttle_maximum_available",
				Help:      "Capacity of the API's token bucket",
			},
		),
		QueryCost: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "graphmeter",
				Name:      "query_cost",
				Help:      "Actual query cost charged per request",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		ThrottledTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "graphmeter",
				Name:      "throttled_total",
				Help:      "Requests rejected by upstream throttling",
			},
		),
	}
}
