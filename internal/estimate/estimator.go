package estimate

import (
	"context"
	"errors"
	"math"
)

// ErrEstimationDegraded is returned when a linear or deep fit cannot be
// computed from the data. Callers fall back to the average tier.
var ErrEstimationDegraded = errors.New("estimation degraded")

// Estimator produces a hunch estimate per candidate.
// Candidates absent from the result have no estimate.
type Estimator interface {
	Estimate(ctx context.Context, ds Dataset) (map[string]float64, error)
}

// New constructs the estimator for tier.
func New(tier Tier, deep DeepConfig) Estimator {
	switch tier {
	case TierLinear:
		return Linear{}
	case TierDeep:
		return NewDeep(deep)
	default:
		return Average{}
	}
}

// Average estimates each candidate as the mean of its own hunch scores.
type Average struct{}

// Estimate implements Estimator. Candidates with no hunches are omitted.
func (Average) Estimate(ctx context.Context, ds Dataset) (map[string]float64, error) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range ds.Samples {
		sums[s.CandidateID] += s.Y
		counts[s.CandidateID]++
	}
	out := make(map[string]float64, len(sums))
	for id, sum := range sums {
		out[id] = sum / float64(counts[id])
	}
	return out, nil
}

// predictAll applies predict to every candidate vector, clamping to the score range.
func predictAll(ds Dataset, predict func([]float64) float64) (map[string]float64, error) {
	out := make(map[string]float64, len(ds.Vectors))
	for id, v := range ds.Vectors {
		p := predict(v)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, ErrEstimationDegraded
		}
		out[id] = clamp(p)
	}
	return out, nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(5, v))
}
