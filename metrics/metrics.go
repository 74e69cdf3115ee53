// Package metrics provides Prometheus collectors for the data layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups every metric recorded by the SDK. A nil *Collectors is a
// valid no-op recorder.
type Collectors struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "morpho",
			Subsystem: "graphql",
			Name:      "requests_total",
			Help:      "GraphQL requests segmented by source and outcome.",
		}, []string{"source", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "morpho",
			Subsystem: "graphql",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of GraphQL requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "morpho",
			Subsystem: "graphql",
			Name:      "retries_total",
			Help:      "Retries issued after a transient NOT_FOUND response.",
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "morpho",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups segmented by cache name and hit/miss.",
		}, []string{"cache", "result"}),
	}

	for _, col := range []prometheus.Collector{c.requests, c.latency, c.retries, c.cacheLookups} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveRequest records the outcome and latency of one request
func (c *Collectors) ObserveRequest(source, outcome string, dur time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(source, outcome).Inc()
	c.latency.WithLabelValues(source).Observe(dur.Seconds())
}

// IncRetry records one retry
func (c *Collectors) IncRetry(source string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(source).Inc()
}

// ObserveCache records a cache hit or miss
func (c *Collectors) ObserveCache(cache string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(cache, result).Inc()
}
