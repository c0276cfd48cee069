package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides liveness and readiness endpoints.
type HealthHandlers struct {
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// HealthHandlersConfig configures the health check handlers.
// Nil checkers are reported as not configured and never fail readiness.
type HealthHandlersConfig struct {
	DBChecker    HealthChecker
	RedisChecker HealthChecker
	// Timeout bounds all readiness checks together. Defaults to 5s.
	Timeout time.Duration
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	h := &HealthHandlers{
		checkers: make(map[string]HealthChecker),
		timeout:  config.Timeout,
	}
	if h.timeout <= 0 {
		h.timeout = 5 * time.Second
	}
	if config.DBChecker != nil {
		h.checkers["database"] = config.DBChecker
	}
	if config.RedisChecker != nil {
		h.checkers["redis"] = config.RedisChecker
	}
	return h
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Register adds /health and /ready to mux.
func (h *HealthHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
}

// Health handles GET /health (liveness probe).
// Returns 200 whenever the process can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe).
// Returns 503 if the database or Redis check fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"database": "not_configured", "redis": "not_configured"}
	healthy := true
	for name, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			checks[name] = "error"
			healthy = false
			slog.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	h.write(w, r, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandlers) write(w http.ResponseWriter, r *http.Request, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode health response", "error", err)
	}
}
