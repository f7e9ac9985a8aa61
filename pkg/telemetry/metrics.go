package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts *prometheus.CounterVec   // op, source, result
	FetchDuration *prometheus.HistogramVec // op, source
	CacheLookups  *prometheus.CounterVec   // result (hit/miss/store_error)
	TaskOutcomes  *prometheus.CounterVec   // stage, result
	StageDuration *prometheus.HistogramVec // stage
	BreakerState  *prometheus.GaugeVec     // breaker
	LastRunRanked prometheus.Gauge
}

// New creates a registry with every collector registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundscope_fetch_attempts_total",
				Help: "Fetch attempts by operation, source and result",
			},
			[]string{"op", "source", "result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fundscope_fetch_attempt_duration_seconds",
				Help:    "Duration of a single fetch attempt",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op", "source"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundscope_cache_lookups_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"},
		),
		TaskOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundscope_task_outcomes_total",
				Help: "Worker pool task outcomes by stage and error kind",
			},
			[]string{"stage", "result"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fundscope_stage_duration_seconds",
				Help:    "Duration of each pipeline stage",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"stage"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fundscope_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"breaker"},
		),
		LastRunRanked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundscope_last_run_ranked",
				Help: "Number of instruments ranked by the last run",
			},
		),
	}

	m.registry.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.CacheLookups,
		m.TaskOutcomes,
		m.StageDuration,
		m.BreakerState,
		m.LastRunRanked,
	)
	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (tests use it with testutil)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAttempt(op, source, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(op, source, result).Inc()
	m.FetchDuration.WithLabelValues(op, source).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) TaskOutcome(stage, result string) {
	if m == nil {
		return
	}
	m.TaskOutcomes.WithLabelValues(stage, result).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) SetRanked(n int) {
	if m == nil {
		return
	}
	m.LastRunRanked.Set(float64(n))
}
