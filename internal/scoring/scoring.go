// Package scoring aggregates participants' per-feature scores into
// per-candidate totals and normalizes them onto a common 0 to 5 scale.
package scoring

import (
	"math"

	"github.com/onnwee/hunchrank/internal/comparison"
)

// NormMax is the top of the normalized scale.
const NormMax = 5.0

// FeatureScore is one entry of a candidate's per-feature breakdown.
type FeatureScore struct {
	FeatureID     string  `json:"feature_id"`
	Score         float64 `json:"score"`          // mean raw score across users
	ScoreWeighted float64 `json:"score_weighted"` // Score * feature weight
}

// CandidateScore is the aggregate result for one candidate.
type CandidateScore struct {
	Total     float64
	Breakdown []FeatureScore
}

type pairKey struct {
	candidateID, featureID string
}

type pairSum struct {
	sum, n int
}

// Aggregate computes score_total and the feature breakdown for every candidate
// that has at least one score. Features are visited in the order given, so the
// result does not depend on the order of scores. Scores referencing unknown
// features are ignored.
func Aggregate(features []comparison.Feature, scores []comparison.Score) map[string]CandidateScore {
	known := make(map[string]bool, len(features))
	for _, f := range features {
		known[f.ID] = true
	}

	// Integer sums are exact, which keeps the means independent of row order.
	pairs := make(map[pairKey]pairSum)
	candidates := make(map[string]bool)
	for _, s := range scores {
		if !known[s.FeatureID] {
			continue
		}
		k := pairKey{s.CandidateID, s.FeatureID}
		p := pairs[k]
		p.sum += s.Score
		p.n++
		pairs[k] = p
		candidates[s.CandidateID] = true
	}

	out := make(map[string]CandidateScore, len(candidates))
	for candidateID := range candidates {
		var cs CandidateScore
		for _, f := range features {
			p, ok := pairs[pairKey{candidateID, f.ID}]
			if !ok {
				continue
			}
			mean := float64(p.sum) / float64(p.n)
			weighted := mean * f.Weight
			cs.Total += weighted
			cs.Breakdown = append(cs.Breakdown, FeatureScore{
				FeatureID:     f.ID,
				Score:         mean,
				ScoreWeighted: weighted,
			})
		}
		out[candidateID] = cs
	}
	return out
}

// FeatureMeans returns the candidate's mean raw score per feature in the order
// of features. Unscored features are 0.
func FeatureMeans(features []comparison.Feature, scores []comparison.Score) map[string][]float64 {
	index := make(map[string]int, len(features))
	for i, f := range features {
		index[f.ID] = i
	}

	sums := make(map[string][]pairSum)
	for _, s := range scores {
		i, ok := index[s.FeatureID]
		if !ok {
			continue
		}
		row, ok := sums[s.CandidateID]
		if !ok {
			row = make([]pairSum, len(features))
			sums[s.CandidateID] = row
		}
		row[i].sum += s.Score
		row[i].n++
	}

	out := make(map[string][]float64, len(sums))
	for candidateID, row := range sums {
		means := make([]float64, len(features))
		for i, p := range row {
			if p.n > 0 {
				means[i] = float64(p.sum) / float64(p.n)
			}
		}
		out[candidateID] = means
	}
	return out
}

// Normalize rescales values with min-max onto [0, NormMax].
// When every value is equal the result is all zeros.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo) * NormMax
	}
	return out
}

// Round1 rounds to one decimal place, half away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Mean returns the arithmetic mean of ints, or 0 for an empty slice.
func Mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
