// Package comparison provides the data model and persistence for comparisons,
// their features and candidates, and the scores and hunches participants record.
package comparison

import (
	"errors"
	"fmt"
	"time"
)

// Score and weight bounds.
const (
	MinScore      = 0
	MaxScore      = 5
	MinWeight     = 0.0
	MaxWeight     = 5.0
	DefaultWeight = 5.0
)

// Common errors for comparison operations.
var (
	ErrNotFound           = errors.New("not found")
	ErrComparisonNotFound = fmt.Errorf("comparison %w", ErrNotFound)
	ErrCandidateNotFound  = fmt.Errorf("candidate %w", ErrNotFound)
	ErrFeatureNotFound    = fmt.Errorf("feature %w", ErrNotFound)
	ErrHunchNotFound      = fmt.Errorf("hunch %w", ErrNotFound)

	// ErrDuplicateHunch is returned when the user already has a hunch on the
	// candidate at the same instant.
	ErrDuplicateHunch = errors.New("hunch already recorded at this timestamp")

	ErrInvalidScore  = errors.New("invalid score: must be an integer between 0 and 5")
	ErrInvalidWeight = errors.New("invalid weight: must be between 0.0 and 5.0")
	ErrInvalidTitle  = errors.New("invalid title: must not be empty")
)

// Comparison is a document comparing several candidates along a set of features.
type Comparison struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	HunchTier   string    `json:"hunch_tier,omitempty"` // tier that produced the cached candidate hunches
	CreatedAt   time.Time `json:"created_at"`
}

// Feature is one axis of a comparison (a column of the training matrix).
type Feature struct {
	ID           string  `json:"id"`
	ComparisonID string  `json:"comparison_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Weight       float64 `json:"weight"`
	Position     int     `json:"position"`
}

// Candidate is one option being compared.
type Candidate struct {
	ID           string   `json:"id"`
	ComparisonID string   `json:"comparison_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Links        []string `json:"links,omitempty"`
	// Hunch is the cached hunch estimate. Nil until first computed.
	Hunch    *float64 `json:"hunch"`
	Position int      `json:"position"`
}

// Score is a user's deliberate rating of one candidate on one feature.
// At most one exists per (user, candidate, feature).
type Score struct {
	UserID      string    `json:"user_id"`
	CandidateID string    `json:"candidate_id"`
	FeatureID   string    `json:"feature_id"`
	Score       int       `json:"score"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Hunch is a user's time-stamped gut rating of a candidate.
type Hunch struct {
	UserID       string    `json:"user_id"`
	CandidateID  string    `json:"candidate_id"`
	ComparisonID string    `json:"comparison_id"`
	Timestamp    time.Time `json:"timestamp"`
	Score        int       `json:"score"`
}

// ValidateScore checks that a raw score is within [0, 5].
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return ErrInvalidScore
	}
	return nil
}

// ValidateWeight checks that a feature weight is within [0, 5].
func ValidateWeight(weight float64) error {
	if weight < MinWeight || weight > MaxWeight {
		return ErrInvalidWeight
	}
	return nil
}

// Validate checks the feature's title and weight.
func (f *Feature) Validate() error {
	if f.Title == "" {
		return ErrInvalidTitle
	}
	return ValidateWeight(f.Weight)
}

// Validate checks the candidate's title.
func (c *Candidate) Validate() error {
	if c.Title == "" {
		return ErrInvalidTitle
	}
	return nil
}

// NewFeature returns a feature with the default weight.
func NewFeature(title string) *Feature {
	return &Feature{Title: title, Weight: DefaultWeight}
}

// NewCandidate returns a candidate with no cached hunch.
func NewCandidate(title string, links ...string) *Candidate {
	return &Candidate{Title: title, Links: links}
}
