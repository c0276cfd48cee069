// Package hunch records participants' gut ratings, collapsing repeat ratings
// of the same candidate within a recency window into one row.
package hunch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/hunchrank/internal/comparison"
)

// DefaultRecencyWindow is how long a hunch stays open for overwriting.
const DefaultRecencyWindow = time.Hour

// Recorder upserts hunches with recency collapse. Writes for the same user
// and candidate are serialized so concurrent requests collapse into one row.
type Recorder struct {
	store  comparison.Store
	window time.Duration
	now    func() time.Time
	locks  *keyedMutex
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithWindow overrides the recency window.
func WithWindow(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store comparison.Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, window: DefaultRecencyWindow, now: time.Now, locks: newKeyedMutex()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores the user's hunch on a candidate. If the user already has a
// hunch on it newer than now minus the window, that row's score is
// overwritten in place and collapsed is true. The caller is responsible for
// permission checks.
func (r *Recorder) Record(ctx context.Context, userID, candidateID string, score int) (h *comparison.Hunch, collapsed bool, err error) {
	if err := comparison.ValidateScore(score); err != nil {
		return nil, false, err
	}
	unlock := r.locks.lock(userID + "\x00" + candidateID)
	defer unlock()

	now := r.now()
	if h, err := r.overwriteOpen(ctx, userID, candidateID, now, score); err != nil || h != nil {
		return h, h != nil, err
	}

	h = &comparison.Hunch{UserID: userID, CandidateID: candidateID, Timestamp: now, Score: score}
	err = r.store.InsertHunch(ctx, h)
	if errors.Is(err, comparison.ErrDuplicateHunch) {
		// Another process stored a hunch at the same instant. It is open, so overwrite it.
		existing, err := r.overwriteOpen(ctx, userID, candidateID, now, score)
		if err == nil && existing == nil {
			err = comparison.ErrDuplicateHunch
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert hunch: %w", err)
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert hunch: %w", err)
	}
	return h, false, nil
}

// overwriteOpen sets score on the user's open hunch and returns it, or nil
// when no hunch is inside the window.
func (r *Recorder) overwriteOpen(ctx context.Context, userID, candidateID string, now time.Time, score int) (*comparison.Hunch, error) {
	existing, err := r.store.LatestHunchSince(ctx, userID, candidateID, now.Add(-r.window))
	if errors.Is(err, comparison.ErrHunchNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up recent hunch: %w", err)
	}
	existing.Score = score
	if err := r.store.UpdateHunchScore(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to overwrite hunch: %w", err)
	}
	return existing, nil
}

// Cutoff returns the instant before which hunches are no longer open.
func (r *Recorder) Cutoff() time.Time {
	return r.now().Add(-r.window)
}
