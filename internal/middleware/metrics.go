package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exported by the middleware.
const (
	MetricRateLimitRequests     = "rate_limit_requests_total"
	MetricRateLimitBlocked      = "rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = "rate_limit_redis_errors_total"
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPRequestsInFlight  = "http_requests_in_flight"
	MetricHTTPRequestSizeBytes  = "http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
)

var (
	rateLimitLabels = []string{"endpoint", "key_type"}
	requestLabels   = []string{"method", "path", "status"}

	// Score and hunch bodies are tiny; rankings grow with candidate count.
	sizeBuckets     = prometheus.ExponentialBuckets(64, 4, 8)
	durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// Metrics holds the rate limiting and HTTP request collectors.
// All operations are thread-safe.
type Metrics struct {
	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitRedisErrors prometheus.Counter

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	inFlight        prometheus.Gauge
	requestSize     *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
}

func counterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func histogramVec(name, help string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, requestLabels)
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		rateLimitRequests: counterVec(MetricRateLimitRequests,
			"Rate limit checks by endpoint and key type", rateLimitLabels),
		rateLimitBlocked: counterVec(MetricRateLimitBlocked,
			"Requests rejected by the rate limiter by endpoint and key type", rateLimitLabels),
		rateLimitRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis failures during rate limiting; each one lets the request through",
		}),
		requestDuration: histogramVec(MetricHTTPRequestDuration,
			"HTTP request duration in seconds", durationBuckets),
		requestsTotal: counterVec(MetricHTTPRequestsTotal,
			"HTTP requests by method, route and status", requestLabels),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricHTTPRequestsInFlight,
			Help: "HTTP requests currently being served",
		}),
		requestSize: histogramVec(MetricHTTPRequestSizeBytes,
			"HTTP request body size in bytes", sizeBuckets),
		responseSize: histogramVec(MetricHTTPResponseSizeBytes,
			"HTTP response body size in bytes", sizeBuckets),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRateLimitRequests counts a rate limit check. keyType is "user" or "ip".
func (m *Metrics) IncRateLimitRequests(endpoint, keyType string) {
	m.rateLimitRequests.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitBlocked counts a rejected request.
func (m *Metrics) IncRateLimitBlocked(endpoint, keyType string) {
	m.rateLimitBlocked.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitRedisErrors counts a fail-open event.
func (m *Metrics) IncRateLimitRedisErrors() {
	m.rateLimitRedisErrors.Inc()
}

// ObserveHTTPRequest records one finished request. path must already be normalized.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.requestDuration.With(labels).Observe(duration)
	m.requestsTotal.With(labels).Inc()
	m.requestSize.With(labels).Observe(float64(requestSize))
	m.responseSize.With(labels).Observe(float64(responseSize))
}

// trackInFlight bumps the in-flight gauge and returns the matching decrement.
func (m *Metrics) trackInFlight() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Collectors returns every collector owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitRedisErrors,
		m.requestDuration,
		m.requestsTotal,
		m.inFlight,
		m.requestSize,
		m.responseSize,
	}
}
