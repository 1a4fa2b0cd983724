// Package metrics holds the Prometheus collectors for the resilience and
// ranking pipeline. All methods are nil-safe so components can run without
// metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector registered by the service
// ⭐ SSOT: 메트릭 정의는 여기서만
type Metrics struct {
	registry *prometheus.Registry

	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec

	LimiterDecisions *prometheus.CounterVec
	LimiterWait      *prometheus.HistogramVec

	CacheLookups *prometheus.CounterVec

	ScreenDuration  *prometheus.HistogramVec
	ScreenCandidate *prometheus.GaugeVec

	PersistFailures prometheus.Counter
	ProviderCalls   *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "picks_breaker_state",
				Help: "Circuit state per dependency (0=closed, 1=half_open, 2=open)",
			},
			[]string{"dep"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picks_breaker_transitions_total",
				Help: "Circuit state transitions",
			},
			[]string{"dep", "to"},
		),

		LimiterDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picks_limiter_decisions_total",
				Help: "Rate limiter acquire outcomes",
			},
			[]string{"key", "result"},
		),
		LimiterWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "picks_limiter_wait_seconds",
				Help:    "Time spent waiting for a rate limit slot",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
			[]string{"key"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picks_cache_lookups_total",
				Help: "Factor cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),

		ScreenDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "picks_screen_duration_seconds",
				Help:    "Duration of a screener run",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"screener"},
		),
		ScreenCandidate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "picks_screen_candidates",
				Help: "Candidates returned by the last screener run",
			},
			[]string{"screener"},
		),

		PersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "picks_recommendation_persist_failures_total",
				Help: "Recommendation records that failed to persist",
			},
		),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picks_provider_calls_total",
				Help: "Guarded provider calls by interface and outcome",
			},
			[]string{"interface", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.BreakerState, m.BreakerTransitions,
		m.LimiterDecisions, m.LimiterWait,
		m.CacheLookups,
		m.ScreenDuration, m.ScreenCandidate,
		m.PersistFailures, m.ProviderCalls,
	)
	return m
}

// Registry exposes the registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// BreakerChanged records a state transition
func (m *Metrics) BreakerChanged(dep, to string, level float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(dep).Set(level)
	m.BreakerTransitions.WithLabelValues(dep, to).Inc()
}

// LimiterDecision records an acquire outcome and how long it waited
func (m *Metrics) LimiterDecision(key string, granted bool, waited time.Duration) {
	if m == nil {
		return
	}
	result := "granted"
	if !granted {
		result = "denied"
	}
	m.LimiterDecisions.WithLabelValues(key, result).Inc()
	m.LimiterWait.WithLabelValues(key).Observe(waited.Seconds())
}

// CacheLookup records a hit or miss on a cache tier
func (m *Metrics) CacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// ScreenFinished records screener duration and result size
func (m *Metrics) ScreenFinished(screener string, d time.Duration, n int) {
	if m == nil {
		return
	}
	m.ScreenDuration.WithLabelValues(screener).Observe(d.Seconds())
	m.ScreenCandidate.WithLabelValues(screener).Set(float64(n))
}

// PersistFailed counts one failed recommendation record
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// ProviderCall records a guarded provider call outcome
// (ok, empty, failed, circuit_open, rate_limited, fallback)
func (m *Metrics) ProviderCall(iface, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(iface, outcome).Inc()
}
