package estimate

import (
	"slices"
	"strconv"
	"strings"

	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/scoring"
)

// Sample is one training pair: a candidate's feature vector and a hunch score.
type Sample struct {
	CandidateID string
	X           []float64
	Y           float64
}

// Dataset is the input to every estimator.
type Dataset struct {
	// Samples holds one entry per stored hunch.
	Samples []Sample
	// Vectors maps every candidate to its feature vector. Candidates without
	// scores map to the zero vector.
	Vectors map[string][]float64
	// Width is the feature vector length.
	Width int
}

// BuildDataset assembles the training set for a comparison. Vector positions
// follow feature IDs in ascending order so the same comparison state always
// yields the same matrix.
func BuildDataset(features []comparison.Feature, candidates []comparison.Candidate, scores []comparison.Score, hunches []comparison.Hunch) Dataset {
	ordered := slices.Clone(features)
	slices.SortStableFunc(ordered, func(a, b comparison.Feature) int { return strings.Compare(a.ID, b.ID) })

	means := scoring.FeatureMeans(ordered, scores)
	ds := Dataset{
		Vectors: make(map[string][]float64, len(candidates)),
		Width:   len(ordered),
	}
	for _, c := range candidates {
		v, ok := means[c.ID]
		if !ok {
			v = make([]float64, len(ordered))
		}
		ds.Vectors[c.ID] = v
	}
	for _, h := range hunches {
		v, ok := ds.Vectors[h.CandidateID]
		if !ok {
			continue
		}
		ds.Samples = append(ds.Samples, Sample{CandidateID: h.CandidateID, X: v, Y: float64(h.Score)})
	}
	return ds
}

// distinctVectors counts the distinct feature vectors among the samples.
func (ds Dataset) distinctVectors() int {
	seen := make(map[string]struct{})
	var b strings.Builder
	for _, s := range ds.Samples {
		b.Reset()
		for _, x := range s.X {
			b.WriteString(formatFloat(x))
			b.WriteByte(',')
		}
		seen[b.String()] = struct{}{}
	}
	return len(seen)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
