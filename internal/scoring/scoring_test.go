package scoring

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/onnwee/hunchrank/internal/comparison"
)

func laptopFeatures() []comparison.Feature {
	return []comparison.Feature{
		{ID: "price", Weight: 5, Position: 0},
		{ID: "battery", Weight: 5, Position: 1},
		{ID: "weight", Weight: 5, Position: 2},
		{ID: "screen", Weight: 5, Position: 3},
	}
}

func uniform(user, candidate string, score int) []comparison.Score {
	var out []comparison.Score
	for _, f := range laptopFeatures() {
		out = append(out, comparison.Score{UserID: user, CandidateID: candidate, FeatureID: f.ID, Score: score})
	}
	return out
}

func TestAggregate_SingleUser(t *testing.T) {
	var scores []comparison.Score
	scores = append(scores, uniform("u1", "mac", 5)...)
	scores = append(scores, uniform("u1", "win", 4)...)
	scores = append(scores, uniform("u1", "linux", 3)...)

	got := Aggregate(laptopFeatures(), scores)

	want := map[string]float64{"mac": 100, "win": 80, "linux": 60}
	for id, total := range want {
		if got[id].Total != total {
			t.Errorf("%s: expected total %v, got %v", id, total, got[id].Total)
		}
		if len(got[id].Breakdown) != 4 {
			t.Errorf("%s: expected 4 breakdown entries, got %d", id, len(got[id].Breakdown))
		}
	}
	if got["mac"].Breakdown[0].FeatureID != "price" || got["mac"].Breakdown[3].FeatureID != "screen" {
		t.Errorf("breakdown not in feature order: %+v", got["mac"].Breakdown)
	}
}

func TestAggregate_MultiUserMean(t *testing.T) {
	var scores []comparison.Score
	scores = append(scores, uniform("u1", "mac", 5)...)
	scores = append(scores, uniform("u2", "mac", 4)...)

	got := Aggregate(laptopFeatures(), scores)
	if got["mac"].Total != 90 {
		t.Errorf("expected 4.5 * 20 = 90, got %v", got["mac"].Total)
	}
	if got["mac"].Breakdown[0].Score != 4.5 || got["mac"].Breakdown[0].ScoreWeighted != 22.5 {
		t.Errorf("unexpected breakdown entry: %+v", got["mac"].Breakdown[0])
	}
}

func TestAggregate_MissingPairsOmitted(t *testing.T) {
	scores := []comparison.Score{
		{UserID: "u1", CandidateID: "mac", FeatureID: "price", Score: 4},
		{UserID: "u1", CandidateID: "mac", FeatureID: "unknown", Score: 5},
	}
	got := Aggregate(laptopFeatures(), scores)
	if got["mac"].Total != 20 {
		t.Errorf("expected 20, got %v", got["mac"].Total)
	}
	if len(got["mac"].Breakdown) != 1 {
		t.Errorf("expected one breakdown entry, got %d", len(got["mac"].Breakdown))
	}
	if _, ok := got["win"]; ok {
		t.Error("unscored candidate must not appear")
	}
}

func TestAggregate_ZeroWeight(t *testing.T) {
	features := []comparison.Feature{{ID: "price", Weight: 0}}
	scores := []comparison.Score{{UserID: "u1", CandidateID: "mac", FeatureID: "price", Score: 5}}
	if got := Aggregate(features, scores)["mac"].Total; got != 0 {
		t.Errorf("expected 0 for zero weight, got %v", got)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	features := laptopFeatures()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "n")
		scores := make([]comparison.Score, n)
		for i := range scores {
			scores[i] = comparison.Score{
				UserID:      rapid.SampledFrom([]string{"u1", "u2", "u3"}).Draw(t, "user"),
				CandidateID: rapid.SampledFrom([]string{"mac", "win", "linux"}).Draw(t, "candidate"),
				FeatureID:   rapid.SampledFrom([]string{"price", "battery", "weight", "screen"}).Draw(t, "feature"),
				Score:       rapid.IntRange(0, 5).Draw(t, "score"),
			}
		}
		shuffled := rapid.Permutation(scores).Draw(t, "shuffled")

		a := Aggregate(features, scores)
		b := Aggregate(features, shuffled)
		if len(a) != len(b) {
			t.Fatalf("candidate sets differ: %d vs %d", len(a), len(b))
		}
		for id, cs := range a {
			if b[id].Total != cs.Total {
				t.Fatalf("%s: total %v != %v after reorder", id, cs.Total, b[id].Total)
			}
		}
	})
}

func TestFeatureMeans(t *testing.T) {
	scores := []comparison.Score{
		{UserID: "u1", CandidateID: "mac", FeatureID: "battery", Score: 4},
		{UserID: "u2", CandidateID: "mac", FeatureID: "battery", Score: 3},
	}
	got := FeatureMeans(laptopFeatures(), scores)["mac"]
	want := []float64{0, 3.5, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"empty", nil, []float64{}},
		{"spread", []float64{100, 80, 60}, []float64{5, 2.5, 0}},
		{"all tie", []float64{7, 7, 7}, []float64{0, 0, 0}},
		{"single", []float64{42}, []float64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("expected len %d, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("index %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestNormalize_Extremes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(0, 100), 1, 20).Draw(t, "values")
		got := Normalize(values)

		lo, hi := values[0], values[0]
		for _, v := range values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		for i, v := range values {
			if got[i] < 0 || got[i] > NormMax+1e-9 {
				t.Fatalf("value %v normalized out of range: %v", v, got[i])
			}
			if hi == lo {
				if got[i] != 0 {
					t.Fatalf("tie must normalize to 0, got %v", got[i])
				}
				continue
			}
			if v == hi && math.Abs(got[i]-NormMax) > 1e-9 {
				t.Fatalf("max must normalize to 5, got %v", got[i])
			}
			if v == lo && got[i] != 0 {
				t.Fatalf("min must normalize to 0, got %v", got[i])
			}
		}
	})
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{2.5, 2.5},
		{2.44, 2.4},
		{2.45, 2.5},
		{3.3333333, 3.3},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round1(tt.in); got != tt.want {
			t.Errorf("Round1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMean(t *testing.T) {
	if Mean(nil) != 0 {
		t.Error("expected 0 for empty input")
	}
	if got := Mean([]int{3, 4}); got != 3.5 {
		t.Errorf("expected 3.5, got %v", got)
	}
}
