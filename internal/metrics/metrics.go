// Package metrics exposes gateway counters in Prometheus format. All methods
// are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes
const (
	OutcomePreflight   = "preflight"
	OutcomeRateLimited = "rate_limited"
	OutcomeCacheHit    = "cache_hit"
	OutcomeForwarded   = "forwarded"
	OutcomeError       = "error"
)

type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	cache           *prometheus.CounterVec
	upstream        *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "requests_total",
			Help:      "Requests handled by the dispatcher, by outcome.",
		}, []string{"outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "cache_operations_total",
			Help:      "Response cache lookups and writes.",
		}, []string{"result"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "upstream_responses_total",
			Help:      "Upstream responses by backend and status class.",
		}, []string{"backend", "class"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "upstream_duration_seconds",
			Help:      "Time spent waiting for the upstream response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
	}

	reg.MustRegister(
		m.requests,
		m.cache,
		m.upstream,
		m.upstreamLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// Cache records "hit", "miss", "store" or "store_error"
func (m *Metrics) Cache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

// Upstream records one upstream exchange; status 0 means a transport failure
func (m *Metrics) Upstream(backend string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(backend, statusClass(status)).Inc()
	m.upstreamLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "failed"
	}
	return strconv.Itoa(status/100) + "xx"
}
