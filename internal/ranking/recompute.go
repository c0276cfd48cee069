package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/estimate"
	"github.com/onnwee/hunchrank/internal/tracing"
)

// RecomputerConfig configures a Recomputer.
type RecomputerConfig struct {
	// Calibration supplies thresholds and deep hyper-parameters. Defaults if nil.
	Calibration *Calibration
	// Logger for recompute activity.
	Logger *slog.Logger
	// Metrics for tier and degradation tracking. Optional.
	Metrics *Metrics
}

// Recomputer refreshes a comparison's cached hunch estimates.
type Recomputer struct {
	store  comparison.Store
	config RecomputerConfig
}

// NewRecomputer creates a Recomputer over store.
func NewRecomputer(store comparison.Store, config RecomputerConfig) *Recomputer {
	if config.Calibration == nil {
		config.Calibration = DefaultCalibration()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Recomputer{store: store, config: config}
}

// Recompute selects the tier from the stored hunch count, fits a freshly
// constructed estimator and saves its estimates. Linear and deep fits that
// cannot be computed fall back to the average for this run. Nothing is saved
// once ctx is done.
func (r *Recomputer) Recompute(ctx context.Context, comparisonID string) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "ranking.recompute")
	defer func() { endSpan(err) }()
	start := time.Now()

	defer func() {
		if err != nil && !errors.Is(err, context.Canceled) && r.config.Metrics != nil {
			r.config.Metrics.IncRecomputeErrors()
		}
	}()

	features, err := r.store.ListFeatures(ctx, comparisonID)
	if err != nil {
		return fmt.Errorf("failed to list features: %w", err)
	}
	candidates, err := r.store.ListCandidates(ctx, comparisonID)
	if err != nil {
		return fmt.Errorf("failed to list candidates: %w", err)
	}
	scores, err := r.store.ListScores(ctx, comparisonID)
	if err != nil {
		return fmt.Errorf("failed to list scores: %w", err)
	}
	hunches, err := r.store.ListHunches(ctx, comparisonID)
	if err != nil {
		return fmt.Errorf("failed to list hunches: %w", err)
	}

	selected := estimate.SelectTier(len(hunches), r.config.Calibration.Thresholds)
	tracing.SetAttributes(ctx,
		attribute.String("comparison.id", comparisonID),
		attribute.String("hunch.tier", selected.String()),
		attribute.Int("hunch.count", len(hunches)))
	if r.config.Metrics != nil {
		r.config.Metrics.IncTierSelected(selected.String())
	}

	ds := estimate.BuildDataset(features, candidates, scores, hunches)
	used := selected
	estimates, err := estimate.New(selected, r.config.Calibration.Deep).Estimate(ctx, ds)
	if errors.Is(err, estimate.ErrEstimationDegraded) {
		r.config.Logger.Warn("hunch estimation degraded, falling back to average",
			"comparison_id", comparisonID,
			"tier", selected.String(),
			"hunches", len(hunches),
			"error", err)
		if r.config.Metrics != nil {
			r.config.Metrics.IncEstimationDegraded(selected.String())
		}
		used = estimate.TierAverage
		estimates, err = estimate.Average{}.Estimate(ctx, ds)
	}
	if err != nil {
		return fmt.Errorf("failed to estimate hunches: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.SaveHunchEstimates(ctx, comparisonID, used.String(), estimates); err != nil {
		return fmt.Errorf("failed to save hunch estimates: %w", err)
	}

	duration := time.Since(start).Seconds()
	if r.config.Metrics != nil {
		r.config.Metrics.IncRecomputeTotal()
		r.config.Metrics.ObserveRecomputeDuration(used.String(), duration)
		r.config.Metrics.SetLastRecompute(float64(time.Now().Unix()), len(hunches))
	}
	r.config.Logger.Debug("hunch estimates recomputed",
		"comparison_id", comparisonID,
		"tier", used.String(),
		"hunches", len(hunches),
		"candidates", len(candidates),
		"duration_seconds", duration)
	return nil
}
