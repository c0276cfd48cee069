package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricTierSelectedTotal        = "hunch_tier_selected_total"
	MetricEstimationDegradedTotal  = "hunch_estimation_degraded_total"
	MetricRecomputeTotal           = "hunch_recompute_total"
	MetricRecomputeErrors          = "hunch_recompute_errors_total"
	MetricRecomputeDuration        = "hunch_recompute_duration_seconds"
	MetricLastRecomputeTimestamp   = "hunch_last_recompute_timestamp"
	MetricLastRecomputeSampleCount = "hunch_last_recompute_sample_count"
)

// Metrics contains Prometheus metrics for hunch estimate recomputation.
// All operations are thread-safe.
type Metrics struct {
	tierSelected             *prometheus.CounterVec
	estimationDegraded       *prometheus.CounterVec
	recomputeTotal           prometheus.Counter
	recomputeErrors          prometheus.Counter
	recomputeDuration        *prometheus.HistogramVec
	lastRecomputeTimestamp   prometheus.Gauge
	lastRecomputeSampleCount prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		tierSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTierSelectedTotal,
			Help: "Total number of recomputes by selected estimator tier",
		}, []string{"tier"}),
		estimationDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEstimationDegradedTotal,
			Help: "Total number of linear or deep fits that fell back to the average tier",
		}, []string{"tier"}),
		recomputeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeTotal,
			Help: "Total number of completed hunch estimate recomputes",
		}),
		recomputeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeErrors,
			Help: "Total number of hunch estimate recompute errors",
		}),
		recomputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRecomputeDuration,
			Help:    "Histogram of hunch estimate recompute duration in seconds by tier",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"tier"}),
		lastRecomputeTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRecomputeTimestamp,
			Help: "Unix timestamp of the last hunch estimate recompute",
		}),
		lastRecomputeSampleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRecomputeSampleCount,
			Help: "Number of hunches used in the last recompute",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.tierSelected,
		m.estimationDegraded,
		m.recomputeTotal,
		m.recomputeErrors,
		m.recomputeDuration,
		m.lastRecomputeTimestamp,
		m.lastRecomputeSampleCount,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncTierSelected counts a recompute for the selected tier.
func (m *Metrics) IncTierSelected(tier string) {
	m.tierSelected.WithLabelValues(tier).Inc()
}

// IncEstimationDegraded counts a fit of tier that fell back to average.
func (m *Metrics) IncEstimationDegraded(tier string) {
	m.estimationDegraded.WithLabelValues(tier).Inc()
}

// IncRecomputeTotal increments the recompute total counter.
func (m *Metrics) IncRecomputeTotal() {
	m.recomputeTotal.Inc()
}

// IncRecomputeErrors increments the recompute errors counter.
func (m *Metrics) IncRecomputeErrors() {
	m.recomputeErrors.Inc()
}

// ObserveRecomputeDuration records a recompute duration sample for tier.
func (m *Metrics) ObserveRecomputeDuration(tier string, seconds float64) {
	m.recomputeDuration.WithLabelValues(tier).Observe(seconds)
}

// SetLastRecompute records when the last recompute finished and how many hunches it used.
func (m *Metrics) SetLastRecompute(timestamp float64, samples int) {
	m.lastRecomputeTimestamp.Set(timestamp)
	m.lastRecomputeSampleCount.Set(float64(samples))
}
