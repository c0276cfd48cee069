// Package api provides the HTTP handlers and error envelope for the ranking API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/hunchrank/internal/auth"
	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/middleware"
	"github.com/onnwee/hunchrank/internal/permission"
)

// Error codes returned in the error envelope.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates a missing or invalid bearer token.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the user lacks the required permission level.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"
)

// ErrorResponse represents the standard error response format:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response. The code in ctx,
// set with middleware.SetErrorCode, is passed on to the logging middleware.
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Comparison not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// classify maps a domain error onto an error code and client-facing message.
func classify(err error) (code, message string) {
	switch {
	case errors.Is(err, permission.ErrPermissionDenied):
		return ErrCodeForbidden, "Permission denied"
	case errors.Is(err, comparison.ErrComparisonNotFound):
		return ErrCodeNotFound, "Comparison not found"
	case errors.Is(err, comparison.ErrCandidateNotFound):
		return ErrCodeNotFound, "Candidate not found"
	case errors.Is(err, comparison.ErrFeatureNotFound):
		return ErrCodeNotFound, "Feature not found"
	case errors.Is(err, comparison.ErrNotFound):
		return ErrCodeNotFound, "Not found"
	case errors.Is(err, comparison.ErrInvalidScore):
		return ErrCodeValidation, "Score must be an integer between 0 and 5"
	case errors.Is(err, comparison.ErrInvalidWeight):
		return ErrCodeValidation, "Weight must be between 0 and 5"
	case errors.Is(err, auth.ErrExpiredToken):
		return ErrCodeAuthFailed, "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken):
		return ErrCodeAuthFailed, "Authentication required"
	default:
		return ErrCodeInternal, "Internal server error"
	}
}

// WriteDomainError writes the error envelope for err. Internal errors are
// logged with the underlying cause, which is never sent to the client.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := classify(err)
	if code == ErrCodeInternal {
		slog.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
	}
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}
