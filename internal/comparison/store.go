package comparison

import (
	"context"
	"time"
)

// Store is the persistence collaborator for comparisons and everything they own.
// Implementations must give read-your-writes consistency per comparison.
type Store interface {
	// CreateComparison inserts a comparison along with its initial features and candidates.
	// IDs and positions are assigned by the store.
	CreateComparison(ctx context.Context, c *Comparison, features []*Feature, candidates []*Candidate) error
	// AddFeature appends a feature to an existing comparison.
	AddFeature(ctx context.Context, comparisonID string, f *Feature) error
	// AddCandidate appends a candidate to an existing comparison.
	AddCandidate(ctx context.Context, comparisonID string, c *Candidate) error
	// DeleteComparison removes a comparison and cascades to everything it owns.
	DeleteComparison(ctx context.Context, id string) error

	// GetComparison returns ErrComparisonNotFound if the comparison is missing.
	GetComparison(ctx context.Context, id string) (*Comparison, error)
	// GetCandidate returns ErrCandidateNotFound if the candidate is missing.
	GetCandidate(ctx context.Context, id string) (*Candidate, error)
	// GetFeature returns ErrFeatureNotFound if the feature is missing.
	GetFeature(ctx context.Context, id string) (*Feature, error)

	// ListFeatures returns the comparison's features in insertion order.
	ListFeatures(ctx context.Context, comparisonID string) ([]Feature, error)
	// ListCandidates returns the comparison's candidates in insertion order.
	ListCandidates(ctx context.Context, comparisonID string) ([]Candidate, error)
	// ListScores returns every score recorded against the comparison's candidates.
	ListScores(ctx context.Context, comparisonID string) ([]Score, error)
	// ListHunches returns every hunch recorded in the comparison, oldest first.
	ListHunches(ctx context.Context, comparisonID string) ([]Hunch, error)
	// CountHunches returns the number of stored hunches in the comparison.
	CountHunches(ctx context.Context, comparisonID string) (int, error)

	// UpsertScore inserts or overwrites the score for (user, candidate, feature).
	// Returns true if a new row was inserted.
	UpsertScore(ctx context.Context, s *Score) (bool, error)

	// LatestHunchSince returns the user's most recent hunch on the candidate with a
	// timestamp strictly after since. Returns ErrHunchNotFound if there is none.
	LatestHunchSince(ctx context.Context, userID, candidateID string, since time.Time) (*Hunch, error)
	// InsertHunch stores a new hunch row.
	InsertHunch(ctx context.Context, h *Hunch) error
	// UpdateHunchScore overwrites the score of the hunch identified by
	// (user, candidate, timestamp), keeping its timestamp.
	UpdateHunchScore(ctx context.Context, h *Hunch) error

	// SaveHunchEstimates replaces the cached hunch of every candidate in the
	// comparison in one step. Candidates absent from estimates are reset to nil.
	SaveHunchEstimates(ctx context.Context, comparisonID, tier string, estimates map[string]float64) error
}
