package permission

import (
	"context"
	"sync"
)

type grantKey struct {
	userID, comparisonID string
}

// InMemoryAuthorizer is an in-memory Authorizer.
// Thread-safe via RWMutex.
type InMemoryAuthorizer struct {
	mu     sync.RWMutex
	grants map[grantKey]Level
}

// NewInMemoryAuthorizer creates an empty authorizer.
func NewInMemoryAuthorizer() *InMemoryAuthorizer {
	return &InMemoryAuthorizer{grants: make(map[grantKey]Level)}
}

// Grant sets the user's level on a comparison. LevelNone revokes.
func (a *InMemoryAuthorizer) Grant(userID, comparisonID string, level Level) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := grantKey{userID, comparisonID}
	if level == LevelNone {
		delete(a.grants, k)
		return
	}
	a.grants[k] = level
}

// Level implements Authorizer.
func (a *InMemoryAuthorizer) Level(ctx context.Context, userID, comparisonID string) (Level, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grants[grantKey{userID, comparisonID}], nil
}
