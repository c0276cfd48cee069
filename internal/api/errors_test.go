package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/hunchrank/internal/auth"
	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/middleware"
	"github.com/onnwee/hunchrank/internal/permission"
)

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to parse response body: %v, body: %s", err, body)
	}
	return resp
}

func TestWriteError_BasicFields(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, context.Background(), http.StatusNotFound, ErrCodeNotFound, "Comparison not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type to contain application/json, got %s", ct)
	}
	resp := decodeError(t, w.Body.Bytes())
	if resp.Error.Code != ErrCodeNotFound || resp.Error.Message != "Comparison not found" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeAuthFailed, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"unknown", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCodeMapping(tt.code); got != tt.want {
			t.Errorf("StatusCodeMapping(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"permission denied", fmt.Errorf("wrapped: %w", permission.ErrPermissionDenied), http.StatusForbidden, ErrCodeForbidden},
		{"comparison not found", comparison.ErrComparisonNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"candidate not found", comparison.ErrCandidateNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"feature not found", comparison.ErrFeatureNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"invalid score", comparison.ErrInvalidScore, http.StatusBadRequest, ErrCodeValidation},
		{"invalid weight", comparison.ErrInvalidWeight, http.StatusBadRequest, ErrCodeValidation},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, ErrCodeAuthFailed},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized, ErrCodeAuthFailed},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteDomainError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeError(t, w.Body.Bytes())
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
			if strings.Contains(resp.Error.Message, "connection reset") {
				t.Error("internal error detail leaked to client")
			}
		})
	}
}

func TestWriteError_IntegrationWithLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteDomainError(w, r, permission.ErrPermissionDenied)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/hunches/c1", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	if entry["error_code"] != ErrCodeForbidden {
		t.Errorf("expected error_code %s in log, got %v", ErrCodeForbidden, entry["error_code"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("expected WARN level, got %v", entry["level"])
	}
}

func TestWriteError_SpecialCharactersInMessage(t *testing.T) {
	w := httptest.NewRecorder()
	msg := `Field "title" contains <script> & 'quotes'`
	WriteError(w, context.Background(), http.StatusBadRequest, ErrCodeValidation, msg)

	if resp := decodeError(t, w.Body.Bytes()); resp.Error.Message != msg {
		t.Errorf("message round trip failed: %q", resp.Error.Message)
	}
}
