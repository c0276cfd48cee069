package comparison

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestComparison(t *testing.T, s *InMemoryStore) (*Comparison, []*Feature, []*Candidate) {
	t.Helper()
	c := &Comparison{Title: "Laptops"}
	features := []*Feature{NewFeature("Price"), NewFeature("Battery")}
	candidates := []*Candidate{NewCandidate("Mac"), NewCandidate("Win"), NewCandidate("Linux")}
	if err := s.CreateComparison(context.Background(), c, features, candidates); err != nil {
		t.Fatalf("CreateComparison failed: %v", err)
	}
	return c, features, candidates
}

func TestInMemoryStore_CreateComparison(t *testing.T) {
	s := NewInMemoryStore()
	c, features, candidates := newTestComparison(t, s)

	if c.ID == "" {
		t.Fatal("expected comparison ID to be assigned")
	}
	for i, f := range features {
		if f.ID == "" || f.ComparisonID != c.ID {
			t.Errorf("feature %d not linked: %+v", i, f)
		}
	}
	for _, cand := range candidates {
		if cand.Hunch != nil {
			t.Errorf("expected nil hunch for new candidate %s", cand.Title)
		}
	}

	got, err := s.ListCandidates(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	for i, want := range []string{"Mac", "Win", "Linux"} {
		if got[i].Title != want {
			t.Errorf("candidate %d: expected %s, got %s", i, want, got[i].Title)
		}
	}
}

func TestInMemoryStore_CreateComparison_Validation(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.CreateComparison(ctx, &Comparison{}, nil, nil); !errors.Is(err, ErrInvalidTitle) {
		t.Errorf("expected ErrInvalidTitle, got %v", err)
	}

	bad := &Feature{Title: "Price", Weight: 5.5}
	if err := s.CreateComparison(ctx, &Comparison{Title: "x"}, []*Feature{bad}, nil); !errors.Is(err, ErrInvalidWeight) {
		t.Errorf("expected ErrInvalidWeight, got %v", err)
	}
}

func TestInMemoryStore_AddFeatureUnknownComparison(t *testing.T) {
	s := NewInMemoryStore()
	err := s.AddFeature(context.Background(), "missing", NewFeature("Price"))
	if !errors.Is(err, ErrComparisonNotFound) {
		t.Errorf("expected ErrComparisonNotFound, got %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected ErrComparisonNotFound to wrap ErrNotFound")
	}
}

func TestInMemoryStore_UpsertScore(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c, features, candidates := newTestComparison(t, s)

	inserted, err := s.UpsertScore(ctx, &Score{UserID: "u1", CandidateID: candidates[0].ID, FeatureID: features[0].ID, Score: 3})
	if err != nil {
		t.Fatalf("UpsertScore failed: %v", err)
	}
	if !inserted {
		t.Error("expected first write to insert")
	}

	inserted, err = s.UpsertScore(ctx, &Score{UserID: "u1", CandidateID: candidates[0].ID, FeatureID: features[0].ID, Score: 5})
	if err != nil {
		t.Fatalf("UpsertScore failed: %v", err)
	}
	if inserted {
		t.Error("expected second write to update")
	}

	scores, err := s.ListScores(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListScores failed: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	if scores[0].Score != 5 {
		t.Errorf("expected overwritten score 5, got %d", scores[0].Score)
	}
}

func TestInMemoryStore_UpsertScore_Errors(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	_, features, candidates := newTestComparison(t, s)

	tests := []struct {
		name  string
		score Score
		want  error
	}{
		{"out of range", Score{UserID: "u1", CandidateID: candidates[0].ID, FeatureID: features[0].ID, Score: 6}, ErrInvalidScore},
		{"negative", Score{UserID: "u1", CandidateID: candidates[0].ID, FeatureID: features[0].ID, Score: -1}, ErrInvalidScore},
		{"unknown candidate", Score{UserID: "u1", CandidateID: "nope", FeatureID: features[0].ID, Score: 1}, ErrCandidateNotFound},
		{"unknown feature", Score{UserID: "u1", CandidateID: candidates[0].ID, FeatureID: "nope", Score: 1}, ErrFeatureNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpsertScore(ctx, &tt.score)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestInMemoryStore_Hunches(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c, _, candidates := newTestComparison(t, s)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	h := &Hunch{UserID: "u1", CandidateID: candidates[0].ID, Timestamp: base, Score: 2}
	if err := s.InsertHunch(ctx, h); err != nil {
		t.Fatalf("InsertHunch failed: %v", err)
	}
	if h.ComparisonID != c.ID {
		t.Errorf("expected comparison %s, got %s", c.ID, h.ComparisonID)
	}

	latest, err := s.LatestHunchSince(ctx, "u1", candidates[0].ID, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LatestHunchSince failed: %v", err)
	}
	if latest.Score != 2 {
		t.Errorf("expected score 2, got %d", latest.Score)
	}

	// The boundary is exclusive.
	if _, err := s.LatestHunchSince(ctx, "u1", candidates[0].ID, base); !errors.Is(err, ErrHunchNotFound) {
		t.Errorf("expected ErrHunchNotFound at boundary, got %v", err)
	}

	latest.Score = 4
	if err := s.UpdateHunchScore(ctx, latest); err != nil {
		t.Fatalf("UpdateHunchScore failed: %v", err)
	}

	hunches, err := s.ListHunches(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListHunches failed: %v", err)
	}
	if len(hunches) != 1 || hunches[0].Score != 4 || !hunches[0].Timestamp.Equal(base) {
		t.Errorf("unexpected hunches after update: %+v", hunches)
	}

	n, err := s.CountHunches(ctx, c.ID)
	if err != nil {
		t.Fatalf("CountHunches failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 hunch, got %d", n)
	}
}

func TestInMemoryStore_SaveHunchEstimates(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c, _, candidates := newTestComparison(t, s)

	estimates := map[string]float64{candidates[0].ID: 3.5, candidates[1].ID: 1.25}
	if err := s.SaveHunchEstimates(ctx, c.ID, "average", estimates); err != nil {
		t.Fatalf("SaveHunchEstimates failed: %v", err)
	}

	got, _ := s.ListCandidates(ctx, c.ID)
	if got[0].Hunch == nil || *got[0].Hunch != 3.5 {
		t.Errorf("expected Mac hunch 3.5, got %v", got[0].Hunch)
	}
	if got[2].Hunch != nil {
		t.Errorf("expected Linux hunch nil, got %v", *got[2].Hunch)
	}

	comp, _ := s.GetComparison(ctx, c.ID)
	if comp.HunchTier != "average" {
		t.Errorf("expected tier average, got %q", comp.HunchTier)
	}

	// Returned copies must not alias store state.
	*got[0].Hunch = 99
	again, _ := s.GetCandidate(ctx, candidates[0].ID)
	if *again.Hunch != 3.5 {
		t.Errorf("store state mutated through returned copy: %v", *again.Hunch)
	}
}

func TestInMemoryStore_DeleteComparisonCascades(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c, features, candidates := newTestComparison(t, s)
	other, otherFeatures, otherCandidates := newTestComparison(t, s)

	_, _ = s.UpsertScore(ctx, &Score{UserID: "u1", CandidateID: candidates[0].ID, FeatureID: features[0].ID, Score: 3})
	_, _ = s.UpsertScore(ctx, &Score{UserID: "u1", CandidateID: otherCandidates[0].ID, FeatureID: otherFeatures[0].ID, Score: 1})
	_ = s.InsertHunch(ctx, &Hunch{UserID: "u1", CandidateID: candidates[0].ID, Score: 2})

	if err := s.DeleteComparison(ctx, c.ID); err != nil {
		t.Fatalf("DeleteComparison failed: %v", err)
	}

	if _, err := s.GetComparison(ctx, c.ID); !errors.Is(err, ErrComparisonNotFound) {
		t.Errorf("expected ErrComparisonNotFound, got %v", err)
	}
	if _, err := s.GetCandidate(ctx, candidates[0].ID); !errors.Is(err, ErrCandidateNotFound) {
		t.Errorf("expected candidate removed, got %v", err)
	}
	if _, err := s.GetFeature(ctx, features[0].ID); !errors.Is(err, ErrFeatureNotFound) {
		t.Errorf("expected feature removed, got %v", err)
	}

	scores, err := s.ListScores(ctx, other.ID)
	if err != nil {
		t.Fatalf("ListScores failed: %v", err)
	}
	if len(scores) != 1 {
		t.Errorf("expected other comparison's score to survive, got %d", len(scores))
	}

	if err := s.DeleteComparison(ctx, c.ID); !errors.Is(err, ErrComparisonNotFound) {
		t.Errorf("expected ErrComparisonNotFound on second delete, got %v", err)
	}
}

func TestInMemoryStore_InsertHunchRejectsSameInstant(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	_, _, candidates := newTestComparison(t, s)
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := s.InsertHunch(ctx, &Hunch{UserID: "u1", CandidateID: candidates[0].ID, Timestamp: ts, Score: 2}); err != nil {
		t.Fatalf("InsertHunch failed: %v", err)
	}
	if err := s.InsertHunch(ctx, &Hunch{UserID: "u1", CandidateID: candidates[0].ID, Timestamp: ts, Score: 3}); !errors.Is(err, ErrDuplicateHunch) {
		t.Errorf("expected ErrDuplicateHunch, got %v", err)
	}
	if err := s.InsertHunch(ctx, &Hunch{UserID: "u2", CandidateID: candidates[0].ID, Timestamp: ts, Score: 3}); err != nil {
		t.Errorf("another user at the same instant should be stored: %v", err)
	}
}
