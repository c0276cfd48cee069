// Package permission models the ordered permission levels a user can hold on a
// comparison and the authorization collaborator that looks them up.
package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Level is a totally ordered capability. A higher level implies every lower one.
type Level int

// Permission levels, lowest to highest. LevelNone means no grant.
const (
	LevelNone Level = iota
	LevelView
	LevelScore
	LevelAddCandidate
	LevelAddFeature
	LevelOwner
)

// ErrPermissionDenied is returned when the caller's level is below the required one.
var ErrPermissionDenied = errors.New("permission denied")

// ErrUnknownLevel is returned by ParseLevel for unrecognized names.
var ErrUnknownLevel = errors.New("unknown permission level")

var levelNames = map[Level]string{
	LevelNone:         "none",
	LevelView:         "view",
	LevelScore:        "score",
	LevelAddCandidate: "add_candidate",
	LevelAddFeature:   "add_feature",
	LevelOwner:        "owner",
}

// String returns the level's wire name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Allows reports whether l meets or exceeds required.
func (l Level) Allows(required Level) bool {
	return l >= required
}

// ParseLevel converts a wire name into a Level.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return LevelNone, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// Authorizer resolves a user's level on a comparison.
// Users without a grant get LevelNone and a nil error.
type Authorizer interface {
	Level(ctx context.Context, userID, comparisonID string) (Level, error)
}

// Require returns ErrPermissionDenied unless userID holds at least required on comparisonID.
func Require(ctx context.Context, a Authorizer, userID, comparisonID string, required Level) error {
	if userID == "" {
		return ErrPermissionDenied
	}
	level, err := a.Level(ctx, userID, comparisonID)
	if err != nil {
		return fmt.Errorf("failed to resolve permission: %w", err)
	}
	if !level.Allows(required) {
		return ErrPermissionDenied
	}
	return nil
}
