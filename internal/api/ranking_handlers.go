package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/middleware"
	"github.com/onnwee/hunchrank/internal/ranking"
)

// maxBodyBytes bounds score and hunch request bodies.
const maxBodyBytes = 4 << 10

// RankingService is the engine behind the ranking routes.
type RankingService interface {
	RecordScore(ctx context.Context, userID, candidateID, featureID string, score int) (*comparison.Score, error)
	RecordHunch(ctx context.Context, userID, candidateID string, score int) (*comparison.Hunch, error)
	GetRanking(ctx context.Context, comparisonID, viewerID string) (*ranking.Ranking, error)
}

// ScoreRequest is the body of score and hunch writes.
type ScoreRequest struct {
	Score *int `json:"score"`
}

// RankingHandlers serves score writes, hunch writes and ranking reads.
type RankingHandlers struct {
	service RankingService
}

// NewRankingHandlers creates RankingHandlers over service.
func NewRankingHandlers(service RankingService) *RankingHandlers {
	return &RankingHandlers{service: service}
}

// Register adds the ranking routes to mux. Writes are wrapped by writeMW,
// which typically enforces authentication and rate limits.
func (h *RankingHandlers) Register(mux *http.ServeMux, writeMW func(http.Handler) http.Handler) {
	if writeMW == nil {
		writeMW = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /scores/{candidateId}/{featureId}", writeMW(http.HandlerFunc(h.RecordScore)))
	mux.Handle("POST /hunches/{candidateId}", writeMW(http.HandlerFunc(h.RecordHunch)))
	mux.HandleFunc("GET /comparisons/{id}/ranking", h.GetRanking)
}

// RecordScore handles POST /scores/{candidateId}/{featureId}.
func (h *RankingHandlers) RecordScore(w http.ResponseWriter, r *http.Request) {
	score, ok := decodeScore(w, r)
	if !ok {
		return
	}

	rec, err := h.service.RecordScore(r.Context(), middleware.GetUserID(r.Context()),
		r.PathValue("candidateId"), r.PathValue("featureId"), score)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// RecordHunch handles POST /hunches/{candidateId}.
func (h *RankingHandlers) RecordHunch(w http.ResponseWriter, r *http.Request) {
	score, ok := decodeScore(w, r)
	if !ok {
		return
	}

	rec, err := h.service.RecordHunch(r.Context(), middleware.GetUserID(r.Context()),
		r.PathValue("candidateId"), score)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// GetRanking handles GET /comparisons/{id}/ranking. Anonymous viewers and
// viewers without view level both get 404.
func (h *RankingHandlers) GetRanking(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetRanking(r.Context(), r.PathValue("id"), middleware.GetUserID(r.Context()))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// decodeScore reads {"score": n}. It writes the error response and returns
// false when the body is unusable.
func decodeScore(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req ScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			WriteDomainError(w, r, comparison.ErrInvalidScore)
			return 0, false
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return 0, false
	}
	if req.Score == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "score is required")
		return 0, false
	}
	return *req.Score, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
