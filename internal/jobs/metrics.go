// Package jobs runs hunch training in the background and reports its progress
// through Prometheus metrics.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricTrainingJobsTotal      = "training_jobs_total"
	MetricTrainingJobsDuration   = "training_jobs_duration_seconds"
	MetricTrainingJobErrorsTotal = "training_job_errors_total"
	MetricTrainingJobsInFlight   = "training_jobs_in_flight"
)

// Job type constants for labeling.
const (
	JobTypeHunchTraining = "hunch_training"
	JobTypeHunchInline   = "hunch_training_inline"
)

// Status constants for job completion.
const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	StatusSuperseded = "superseded"
)

// Error type constants for labeling.
const (
	ErrorTypeAttempt   = "attempt_failed"
	ErrorTypeExhausted = "retries_exhausted"
	ErrorTypeTimeout   = "timeout"
)

// Reporter is the subset of Metrics used by the queue.
// Nil reporters are allowed.
type Reporter interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
	SetInFlight(n int)
}

// Metrics contains Prometheus metrics for background training jobs.
// All operations are thread-safe.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsDuration *prometheus.HistogramVec
	jobErrors    *prometheus.CounterVec
	inFlight     prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTrainingJobsTotal,
				Help: "Total number of training job runs by type and status",
			},
			[]string{"job_type", "status"},
		),
		jobsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricTrainingJobsDuration,
				Help:    "Histogram of training job duration in seconds by job type",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"job_type"},
		),
		jobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTrainingJobErrorsTotal,
				Help: "Total number of training job errors by type and error type",
			},
			[]string{"job_type", "error_type"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricTrainingJobsInFlight,
				Help: "Number of comparisons with a training run in flight",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncJobsTotal increments the jobs total counter.
func (m *Metrics) IncJobsTotal(jobType, status string) {
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
}

// ObserveJobDuration records a job duration sample.
func (m *Metrics) ObserveJobDuration(jobType string, seconds float64) {
	m.jobsDuration.WithLabelValues(jobType).Observe(seconds)
}

// IncJobErrors increments the job errors counter.
// errorType: one of the ErrorType constants
func (m *Metrics) IncJobErrors(jobType, errorType string) {
	m.jobErrors.WithLabelValues(jobType, errorType).Inc()
}

// SetInFlight sets the number of comparisons currently training.
func (m *Metrics) SetInFlight(n int) {
	m.inFlight.Set(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.jobsTotal,
		m.jobsDuration,
		m.jobErrors,
		m.inFlight,
	}
}
