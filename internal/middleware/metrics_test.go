package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncRateLimitRequests("/hunches/{candidateId}", "user")
	m.IncRateLimitBlocked("/hunches/{candidateId}", "ip")
	m.IncRateLimitRedisErrors()
	m.ObserveHTTPRequest("GET", "/health", "200", 0.01, 0, 10)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		MetricRateLimitRequests,
		MetricRateLimitBlocked,
		MetricRateLimitRedisErrors,
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPRequestsInFlight,
		MetricHTTPRequestSizeBytes,
		MetricHTTPResponseSizeBytes,
	} {
		if !found[name] {
			t.Errorf("metric %s not found in registry", name)
		}
	}

	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	m := NewMetrics()

	m.IncRateLimitRequests("/scores/{candidateId}/{featureId}", "user")
	m.IncRateLimitRequests("/scores/{candidateId}/{featureId}", "user")
	m.IncRateLimitBlocked("/scores/{candidateId}/{featureId}", "user")

	var metric dto.Metric
	if err := m.rateLimitRequests.WithLabelValues("/scores/{candidateId}/{featureId}", "user").Write(&metric); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}

	metric.Reset()
	if err := m.rateLimitBlocked.WithLabelValues("/scores/{candidateId}/{featureId}", "user").Write(&metric); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("blocked = %v, want 1", got)
	}
}

func TestMetrics_Collectors(t *testing.T) {
	if n := len(NewMetrics().Collectors()); n != 8 {
		t.Errorf("expected 8 collectors, got %d", n)
	}
}

func TestMetrics_TrackInFlight(t *testing.T) {
	m := NewMetrics()
	read := func() float64 {
		var metric dto.Metric
		if err := m.inFlight.Write(&metric); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
		return metric.GetGauge().GetValue()
	}

	doneA := m.trackInFlight()
	doneB := m.trackInFlight()
	if got := read(); got != 2 {
		t.Errorf("in flight = %v, want 2", got)
	}
	doneA()
	doneB()
	if got := read(); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}
