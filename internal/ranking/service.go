package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/estimate"
	"github.com/onnwee/hunchrank/internal/hunch"
	"github.com/onnwee/hunchrank/internal/jobs"
	"github.com/onnwee/hunchrank/internal/permission"
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store      comparison.Store
	Authorizer permission.Authorizer
	Recomputer *Recomputer
	// Scheduler receives linear and deep recomputes. If nil they run inline.
	Scheduler jobs.Scheduler
	// Recorder overrides the hunch recorder, mainly to inject a clock.
	Recorder    *hunch.Recorder
	Calibration *Calibration
	Logger      *slog.Logger
}

// Service is the ranking engine's entry point for writes and reads.
type Service struct {
	store      comparison.Store
	authorizer permission.Authorizer
	recomputer *Recomputer
	scheduler  jobs.Scheduler
	recorder   *hunch.Recorder
	cal        *Calibration
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Calibration == nil {
		cfg.Calibration = DefaultCalibration()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recomputer == nil {
		cfg.Recomputer = NewRecomputer(cfg.Store, RecomputerConfig{Calibration: cfg.Calibration, Logger: cfg.Logger})
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = jobs.NewInlineScheduler(cfg.Recomputer.Recompute, cfg.Logger, nil)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = hunch.NewRecorder(cfg.Store, hunch.WithWindow(cfg.Calibration.RecencyWindow()))
	}
	return &Service{
		store:      cfg.Store,
		authorizer: cfg.Authorizer,
		recomputer: cfg.Recomputer,
		scheduler:  cfg.Scheduler,
		recorder:   cfg.Recorder,
		cal:        cfg.Calibration,
		logger:     cfg.Logger,
	}
}

// RecordScore upserts the user's score for a candidate on a feature.
// The user needs score level on the candidate's comparison.
func (s *Service) RecordScore(ctx context.Context, userID, candidateID, featureID string, score int) (*comparison.Score, error) {
	candidate, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	feature, err := s.store.GetFeature(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if feature.ComparisonID != candidate.ComparisonID {
		return nil, comparison.ErrFeatureNotFound
	}
	if err := permission.Require(ctx, s.authorizer, userID, candidate.ComparisonID, permission.LevelScore); err != nil {
		return nil, err
	}
	if err := comparison.ValidateScore(score); err != nil {
		return nil, err
	}

	rec := &comparison.Score{UserID: userID, CandidateID: candidateID, FeatureID: featureID, Score: score}
	inserted, err := s.store.UpsertScore(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to record score: %w", err)
	}
	s.logger.Debug("score recorded",
		"comparison_id", candidate.ComparisonID,
		"candidate_id", candidateID,
		"feature_id", featureID,
		"inserted", inserted)
	return rec, nil
}

// RecordHunch stores the user's hunch on a candidate and refreshes the
// comparison's estimates. Refresh failures never fail the write.
func (s *Service) RecordHunch(ctx context.Context, userID, candidateID string, score int) (*comparison.Hunch, error) {
	candidate, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(ctx, s.authorizer, userID, candidate.ComparisonID, permission.LevelScore); err != nil {
		return nil, err
	}

	h, collapsed, err := s.recorder.Record(ctx, userID, candidateID, score)
	if err != nil {
		return nil, err
	}

	s.refresh(ctx, candidate.ComparisonID)
	s.logger.Debug("hunch recorded",
		"comparison_id", candidate.ComparisonID,
		"candidate_id", candidateID,
		"collapsed", collapsed)
	return h, nil
}

// refresh recomputes average-tier estimates inline and hands heavier tiers to the scheduler.
func (s *Service) refresh(ctx context.Context, comparisonID string) {
	n, err := s.store.CountHunches(ctx, comparisonID)
	if err != nil {
		s.logger.Error("failed to count hunches", "comparison_id", comparisonID, "error", err)
		return
	}

	tier := estimate.SelectTier(n, s.cal.Thresholds)
	if tier == estimate.TierAverage {
		if err := s.recomputer.Recompute(context.WithoutCancel(ctx), comparisonID); err != nil {
			s.logger.Error("average recompute failed",
				"comparison_id", comparisonID,
				"error", fmt.Errorf("%w: %w", jobs.ErrTrainingFailed, err))
		}
		return
	}
	if err := s.scheduler.Schedule(ctx, comparisonID); err != nil {
		s.logger.Warn("failed to schedule training",
			"comparison_id", comparisonID,
			"tier", tier.String(),
			"error", err)
	}
}

// GetRanking returns the comparison's candidates ordered by combined_norm.
// Viewers without view level get ErrComparisonNotFound.
func (s *Service) GetRanking(ctx context.Context, comparisonID, viewerID string) (*Ranking, error) {
	comp, err := s.store.GetComparison(ctx, comparisonID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(ctx, s.authorizer, viewerID, comparisonID, permission.LevelView); err != nil {
		if errors.Is(err, permission.ErrPermissionDenied) {
			return nil, comparison.ErrComparisonNotFound
		}
		return nil, err
	}

	features, err := s.store.ListFeatures(ctx, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	candidates, err := s.store.ListCandidates(ctx, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	scores, err := s.store.ListScores(ctx, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	hunches, err := s.store.ListHunches(ctx, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hunches: %w", err)
	}

	tier := comp.HunchTier
	if tier == "" {
		tier = estimate.TierAverage.String()
	}
	return &Ranking{
		ComparisonID: comp.ID,
		Title:        comp.Title,
		Tier:         tier,
		Candidates: Combine(CombineInput{
			Candidates: candidates,
			Features:   features,
			Scores:     scores,
			Hunches:    hunches,
			LastHunch:  s.openHunches(hunches, viewerID),
		}),
	}, nil
}

// openHunches returns the viewer's latest hunch per candidate still inside the recency window.
func (s *Service) openHunches(hunches []comparison.Hunch, viewerID string) map[string]int {
	cutoff := s.recorder.Cutoff()
	latest := make(map[string]comparison.Hunch)
	for _, h := range hunches {
		if h.UserID != viewerID || !h.Timestamp.After(cutoff) {
			continue
		}
		if prev, ok := latest[h.CandidateID]; !ok || h.Timestamp.After(prev.Timestamp) {
			latest[h.CandidateID] = h
		}
	}
	out := make(map[string]int, len(latest))
	for id, h := range latest {
		out[id] = h.Score
	}
	return out
}
