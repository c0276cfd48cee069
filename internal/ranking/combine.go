package ranking

import (
	"slices"

	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/scoring"
)

// CandidateRanking is one candidate annotated with every ranking component.
// All numeric components are rounded to one decimal.
type CandidateRanking struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
	Position    int      `json:"position"`

	// Hunch is the cached estimate, nil until first computed.
	Hunch *float64 `json:"hunch"`
	// LastHunch is the viewer's open hunch on this candidate, if any.
	LastHunch *int `json:"last_hunch"`

	ScoreTotal    float64 `json:"score_total"`
	ScoreNorm     float64 `json:"score_norm"`
	HunchTotal    float64 `json:"hunch_total"`
	HunchNorm     float64 `json:"hunch_norm"`
	CombinedTotal float64 `json:"combined_total"`
	CombinedNorm  float64 `json:"combined_norm"`

	Features []scoring.FeatureScore `json:"features"`
}

// Ranking is the ordered result for one comparison.
type Ranking struct {
	ComparisonID string             `json:"comparison_id"`
	Title        string             `json:"title"`
	Tier         string             `json:"tier"`
	Candidates   []CandidateRanking `json:"candidates"`
}

// CombineInput is everything Combine needs about a comparison.
type CombineInput struct {
	Candidates []comparison.Candidate
	Features   []comparison.Feature
	Scores     []comparison.Score
	Hunches    []comparison.Hunch
	// LastHunch maps candidate IDs to the viewer's open hunch score.
	LastHunch map[string]int
}

// Combine annotates and orders candidates. It is pure: the same input always
// yields the same output. Ordering is by combined_norm descending with ties
// kept in candidate position order.
func Combine(in CombineInput) []CandidateRanking {
	agg := scoring.Aggregate(in.Features, in.Scores)

	hunchScores := make(map[string][]int)
	for _, h := range in.Hunches {
		hunchScores[h.CandidateID] = append(hunchScores[h.CandidateID], h.Score)
	}

	totals := make([]float64, len(in.Candidates))
	for i, c := range in.Candidates {
		totals[i] = agg[c.ID].Total
	}
	norms := scoring.Normalize(totals)

	out := make([]CandidateRanking, len(in.Candidates))
	for i, c := range in.Candidates {
		hs := hunchScores[c.ID]
		hunchTotal := 0.0
		for _, s := range hs {
			hunchTotal += float64(s)
		}
		hunchNorm := 0.0
		switch {
		case c.Hunch != nil:
			hunchNorm = *c.Hunch
		case len(hs) > 0:
			hunchNorm = scoring.Mean(hs)
		}

		features := agg[c.ID].Breakdown
		if features == nil {
			features = []scoring.FeatureScore{}
		}

		cr := CandidateRanking{
			ID:            c.ID,
			Title:         c.Title,
			Description:   c.Description,
			Links:         c.Links,
			Position:      c.Position,
			Hunch:         c.Hunch,
			ScoreTotal:    scoring.Round1(totals[i]),
			ScoreNorm:     scoring.Round1(norms[i]),
			HunchTotal:    scoring.Round1(hunchTotal),
			HunchNorm:     scoring.Round1(hunchNorm),
			CombinedTotal: scoring.Round1((totals[i] + hunchTotal) / 2),
			CombinedNorm:  scoring.Round1((norms[i] + hunchNorm) / 2),
			Features:      features,
		}
		if v, ok := in.LastHunch[c.ID]; ok {
			cr.LastHunch = &v
		}
		out[i] = cr
	}

	slices.SortStableFunc(out, func(a, b CandidateRanking) int {
		switch {
		case a.CombinedNorm > b.CombinedNorm:
			return -1
		case a.CombinedNorm < b.CombinedNorm:
			return 1
		default:
			return a.Position - b.Position
		}
	})
	return out
}
