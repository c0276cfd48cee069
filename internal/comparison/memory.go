package comparison

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// scoreKey identifies a score row.
type scoreKey struct {
	userID, candidateID, featureID string
}

// InMemoryStore is an in-memory implementation of Store.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	comparisons map[string]*Comparison
	features    map[string]*Feature
	candidates  map[string]*Candidate
	scores      map[scoreKey]*Score
	scoreOrder  []scoreKey
	hunches     []*Hunch // insertion order
	nextPos     map[string]int // comparisonID -> next position (shared by features and candidates)
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		now:         time.Now,
		comparisons: make(map[string]*Comparison),
		features:    make(map[string]*Feature),
		candidates:  make(map[string]*Candidate),
		scores:      make(map[scoreKey]*Score),
		nextPos:     make(map[string]int),
	}
}

// CreateComparison inserts a comparison with its initial features and candidates.
func (s *InMemoryStore) CreateComparison(ctx context.Context, c *Comparison, features []*Feature, candidates []*Candidate) error {
	if c.Title == "" {
		return ErrInvalidTitle
	}
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, cand := range candidates {
		if err := cand.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	cp := *c
	s.comparisons[c.ID] = &cp

	for _, f := range features {
		s.addFeatureLocked(c.ID, f)
	}
	for _, cand := range candidates {
		s.addCandidateLocked(c.ID, cand)
	}
	return nil
}

// AddFeature appends a feature to an existing comparison.
func (s *InMemoryStore) AddFeature(ctx context.Context, comparisonID string, f *Feature) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comparisons[comparisonID]; !ok {
		return ErrComparisonNotFound
	}
	s.addFeatureLocked(comparisonID, f)
	return nil
}

// AddCandidate appends a candidate to an existing comparison.
func (s *InMemoryStore) AddCandidate(ctx context.Context, comparisonID string, c *Candidate) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comparisons[comparisonID]; !ok {
		return ErrComparisonNotFound
	}
	s.addCandidateLocked(comparisonID, c)
	return nil
}

func (s *InMemoryStore) addFeatureLocked(comparisonID string, f *Feature) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.ComparisonID = comparisonID
	f.Position = s.nextPos[comparisonID]
	s.nextPos[comparisonID]++
	cp := *f
	s.features[f.ID] = &cp
}

func (s *InMemoryStore) addCandidateLocked(comparisonID string, c *Candidate) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.ComparisonID = comparisonID
	c.Position = s.nextPos[comparisonID]
	s.nextPos[comparisonID]++
	s.candidates[c.ID] = copyCandidate(c)
}

// DeleteComparison removes a comparison and everything it owns.
func (s *InMemoryStore) DeleteComparison(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comparisons[id]; !ok {
		return ErrComparisonNotFound
	}
	delete(s.comparisons, id)
	delete(s.nextPos, id)

	removed := make(map[string]bool)
	for fid, f := range s.features {
		if f.ComparisonID == id {
			removed[fid] = true
			delete(s.features, fid)
		}
	}
	for cid, c := range s.candidates {
		if c.ComparisonID == id {
			removed[cid] = true
			delete(s.candidates, cid)
		}
	}

	order := s.scoreOrder[:0]
	for _, k := range s.scoreOrder {
		if removed[k.candidateID] || removed[k.featureID] {
			delete(s.scores, k)
			continue
		}
		order = append(order, k)
	}
	s.scoreOrder = order

	hunches := s.hunches[:0]
	for _, h := range s.hunches {
		if h.ComparisonID != id {
			hunches = append(hunches, h)
		}
	}
	s.hunches = hunches
	return nil
}

// GetComparison retrieves a comparison by ID.
func (s *InMemoryStore) GetComparison(ctx context.Context, id string) (*Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comparisons[id]
	if !ok {
		return nil, ErrComparisonNotFound
	}
	cp := *c
	return &cp, nil
}

// GetCandidate retrieves a candidate by ID.
func (s *InMemoryStore) GetCandidate(ctx context.Context, id string) (*Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, ErrCandidateNotFound
	}
	return copyCandidate(c), nil
}

// GetFeature retrieves a feature by ID.
func (s *InMemoryStore) GetFeature(ctx context.Context, id string) (*Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	if !ok {
		return nil, ErrFeatureNotFound
	}
	cp := *f
	return &cp, nil
}

// ListFeatures returns features in insertion order.
func (s *InMemoryStore) ListFeatures(ctx context.Context, comparisonID string) ([]Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.comparisons[comparisonID]; !ok {
		return nil, ErrComparisonNotFound
	}
	var out []Feature
	for _, f := range s.features {
		if f.ComparisonID == comparisonID {
			out = append(out, *f)
		}
	}
	sortByPosition(out, func(f Feature) int { return f.Position })
	return out, nil
}

// ListCandidates returns candidates in insertion order.
func (s *InMemoryStore) ListCandidates(ctx context.Context, comparisonID string) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.comparisons[comparisonID]; !ok {
		return nil, ErrComparisonNotFound
	}
	var out []Candidate
	for _, c := range s.candidates {
		if c.ComparisonID == comparisonID {
			out = append(out, *copyCandidate(c))
		}
	}
	sortByPosition(out, func(c Candidate) int { return c.Position })
	return out, nil
}

// ListScores returns scores for the comparison's candidates in write order.
func (s *InMemoryStore) ListScores(ctx context.Context, comparisonID string) ([]Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.comparisons[comparisonID]; !ok {
		return nil, ErrComparisonNotFound
	}
	var out []Score
	for _, k := range s.scoreOrder {
		if c, ok := s.candidates[k.candidateID]; ok && c.ComparisonID == comparisonID {
			out = append(out, *s.scores[k])
		}
	}
	return out, nil
}

// ListHunches returns the comparison's hunches oldest first.
func (s *InMemoryStore) ListHunches(ctx context.Context, comparisonID string) ([]Hunch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.comparisons[comparisonID]; !ok {
		return nil, ErrComparisonNotFound
	}
	var out []Hunch
	for _, h := range s.hunches {
		if h.ComparisonID == comparisonID {
			out = append(out, *h)
		}
	}
	return out, nil
}

// CountHunches returns the number of hunches stored for the comparison.
func (s *InMemoryStore) CountHunches(ctx context.Context, comparisonID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.comparisons[comparisonID]; !ok {
		return 0, ErrComparisonNotFound
	}
	n := 0
	for _, h := range s.hunches {
		if h.ComparisonID == comparisonID {
			n++
		}
	}
	return n, nil
}

// UpsertScore inserts or overwrites a score.
func (s *InMemoryStore) UpsertScore(ctx context.Context, score *Score) (bool, error) {
	if err := ValidateScore(score.Score); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[score.CandidateID]; !ok {
		return false, ErrCandidateNotFound
	}
	if _, ok := s.features[score.FeatureID]; !ok {
		return false, ErrFeatureNotFound
	}
	if score.UpdatedAt.IsZero() {
		score.UpdatedAt = s.now()
	}

	k := scoreKey{score.UserID, score.CandidateID, score.FeatureID}
	if existing, ok := s.scores[k]; ok {
		existing.Score = score.Score
		existing.UpdatedAt = score.UpdatedAt
		return false, nil
	}
	cp := *score
	s.scores[k] = &cp
	s.scoreOrder = append(s.scoreOrder, k)
	return true, nil
}

// LatestHunchSince returns the user's most recent hunch on a candidate after since.
func (s *InMemoryStore) LatestHunchSince(ctx context.Context, userID, candidateID string, since time.Time) (*Hunch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Hunch
	for _, h := range s.hunches {
		if h.UserID != userID || h.CandidateID != candidateID || !h.Timestamp.After(since) {
			continue
		}
		if latest == nil || h.Timestamp.After(latest.Timestamp) {
			latest = h
		}
	}
	if latest == nil {
		return nil, ErrHunchNotFound
	}
	cp := *latest
	return &cp, nil
}

// InsertHunch stores a new hunch.
func (s *InMemoryStore) InsertHunch(ctx context.Context, h *Hunch) error {
	if err := ValidateScore(h.Score); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[h.CandidateID]
	if !ok {
		return ErrCandidateNotFound
	}
	h.ComparisonID = c.ComparisonID
	if h.Timestamp.IsZero() {
		h.Timestamp = s.now()
	}
	for _, existing := range s.hunches {
		if existing.UserID == h.UserID && existing.CandidateID == h.CandidateID && existing.Timestamp.Equal(h.Timestamp) {
			return ErrDuplicateHunch
		}
	}
	cp := *h
	s.hunches = append(s.hunches, &cp)
	return nil
}

// UpdateHunchScore overwrites the score of an existing hunch.
func (s *InMemoryStore) UpdateHunchScore(ctx context.Context, h *Hunch) error {
	if err := ValidateScore(h.Score); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.hunches {
		if existing.UserID == h.UserID && existing.CandidateID == h.CandidateID && existing.Timestamp.Equal(h.Timestamp) {
			existing.Score = h.Score
			return nil
		}
	}
	return ErrHunchNotFound
}

// SaveHunchEstimates replaces every candidate's cached hunch in the comparison.
func (s *InMemoryStore) SaveHunchEstimates(ctx context.Context, comparisonID, tier string, estimates map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comp, ok := s.comparisons[comparisonID]
	if !ok {
		return ErrComparisonNotFound
	}
	comp.HunchTier = tier
	for _, c := range s.candidates {
		if c.ComparisonID != comparisonID {
			continue
		}
		if v, ok := estimates[c.ID]; ok {
			v := v
			c.Hunch = &v
		} else {
			c.Hunch = nil
		}
	}
	return nil
}

func sortByPosition[T any](items []T, pos func(T) int) {
	slices.SortStableFunc(items, func(a, b T) int { return pos(a) - pos(b) })
}

// copyCandidate returns a deep copy so callers cannot mutate stored state.
func copyCandidate(c *Candidate) *Candidate {
	cp := *c
	if c.Links != nil {
		cp.Links = append([]string(nil), c.Links...)
	}
	if c.Hunch != nil {
		v := *c.Hunch
		cp.Hunch = &v
	}
	return &cp
}
