package tracing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/hunchrank/internal/middleware"
	"github.com/onnwee/hunchrank/internal/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

// TestEndToEndTracing checks that middleware spans and helper spans end up in
// one trace when a score write passes through the server.
func TestEndToEndTracing(t *testing.T) {
	recorder := installRecorder(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /scores/{candidateId}/{featureId}", func(w http.ResponseWriter, r *http.Request) {
		ctx, endRecord := tracing.StartSpan(r.Context(), "ranking.record_score")
		tracing.SetAttributes(ctx, attribute.String("candidate_id", r.PathValue("candidateId")))

		_, endInsert := tracing.StartDBSpan(ctx, "scores", tracing.DBOperationInsert)
		endInsert(nil)

		tracing.AddEvent(ctx, "score_recorded", attribute.Int("score", 4))
		endRecord(nil)
		w.WriteHeader(http.StatusNoContent)
	})
	handler := middleware.Tracing(tracing.ServiceName)(mux)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/scores/cand-1/feat-9", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		for i, span := range spans {
			t.Logf("span %d: %s", i, span.Name())
		}
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	names := make(map[string]bool)
	traceID := spans[0].SpanContext().TraceID()
	for _, span := range spans {
		names[span.Name()] = true
		if span.SpanContext().TraceID() != traceID {
			t.Errorf("span %s is in a different trace", span.Name())
		}
	}
	for _, want := range []string{"POST /scores/{candidateId}/{featureId}", "ranking.record_score", "insert scores"} {
		if !names[want] {
			t.Errorf("missing span %q", want)
		}
	}
}

func TestHealthProbesNotTraced(t *testing.T) {
	recorder := installRecorder(t)

	handler := middleware.Tracing(tracing.ServiceName)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("expected no spans for probes, got %d", n)
	}
}

func TestTracingDisabled(t *testing.T) {
	provider, err := tracing.NewProvider(context.Background(), tracing.Config{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create disabled provider: %v", err)
	}
	if provider.IsEnabled() {
		t.Error("expected tracing to be disabled")
	}

	// Helpers are safe to call without an installed provider.
	ctx, endSpan := tracing.StartSpan(context.Background(), "ranking.recompute")
	tracing.SetAttributes(ctx, attribute.String("key", "value"))
	tracing.AddEvent(ctx, "noop")
	endSpan(nil)
}

func TestTraceIDVisibleToHandlers(t *testing.T) {
	recorder := installRecorder(t)

	var captured string
	handler := middleware.Tracing(tracing.ServiceName)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = middleware.GetTraceID(r)
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/comparisons/c1/ranking", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if captured == "" || captured != spans[0].SpanContext().TraceID().String() {
		t.Errorf("handler saw trace ID %q, span has %s", captured, spans[0].SpanContext().TraceID())
	}
	if spans[0].Name() != "GET /comparisons/{id}/ranking" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
}
