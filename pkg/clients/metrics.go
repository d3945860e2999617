package clients

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	fetchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threader_fetch_requests_total",
			Help: "Upstream requests dispatched by a fetcher, by HTTP status (or \"error\")",
		},
		[]string{"fetcher", "status"},
	)

	fetchCacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threader_fetch_cache_events_total",
			Help: "Response cache events (hit, miss, shared, store, error)",
		},
		[]string{"fetcher", "event"},
	)

	fetchCacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threader_fetch_cache_entries",
			Help: "Responses currently held in a fetcher's cache",
		},
		[]string{"fetcher"},
	)

	fetchRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threader_fetch_rate_limited_total",
			Help: "Upstream 429 responses",
		},
		[]string{"fetcher"},
	)

	fetchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threader_fetch_request_duration_seconds",
			Help:    "Time from dispatch to decoded body, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"fetcher"},
	)

	fetchThrottleWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threader_fetch_throttle_wait_seconds",
			Help:    "Time a request spent queued behind its host lane",
			Buckets: []float64{0, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		},
		[]string{"fetcher"},
	)

	// 0=closed, 1=half-open, 2=open
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threader_fetch_circuit_state",
			Help: "Circuit breaker state per fetcher (0=closed, 1=half-open, 2=open)",
		},
		[]string{"fetcher"},
	)

	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threader_fetch_circuit_transitions_total",
			Help: "Circuit breaker state transitions per fetcher",
		},
		[]string{"fetcher", "from", "to"},
	)
)

func init() {
	prometheus.MustRegister(fetchRequestsTotal)
	prometheus.MustRegister(fetchCacheEvents)
	prometheus.MustRegister(fetchCacheEntries)
	prometheus.MustRegister(fetchRateLimited)
	prometheus.MustRegister(fetchRequestDuration)
	prometheus.MustRegister(fetchThrottleWait)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(breakerTransitions)
}

// CircuitBreakerMetricsCallback returns an OnStateChange callback that feeds
// the circuit gauges for the named fetcher.
func CircuitBreakerMetricsCallback(name string) func(string, CircuitBreakerState, CircuitBreakerState) {
	return func(_ string, from, to CircuitBreakerState) {
		breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(name).Set(float64(to))
	}
}

func cacheEventHook(fetcher, event string) func(map[string]string) {
	return func(map[string]string) {
		fetchCacheEvents.WithLabelValues(fetcher, event).Inc()
	}
}
