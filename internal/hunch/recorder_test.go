package hunch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/hunchrank/internal/comparison"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func setup(t *testing.T) (*comparison.InMemoryStore, *comparison.Comparison, *comparison.Candidate, *fakeClock) {
	t.Helper()
	store := comparison.NewInMemoryStore()
	comp := &comparison.Comparison{Title: "Laptops"}
	mac := comparison.NewCandidate("Mac")
	if err := store.CreateComparison(context.Background(), comp, []*comparison.Feature{comparison.NewFeature("Price")}, []*comparison.Candidate{mac}); err != nil {
		t.Fatalf("CreateComparison failed: %v", err)
	}
	return store, comp, mac, &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestRecorder_CollapsesWithinWindow(t *testing.T) {
	store, comp, mac, clock := setup(t)
	r := NewRecorder(store, WithClock(clock.Now))
	ctx := context.Background()

	first, collapsed, err := r.Record(ctx, "u1", mac.ID, 2)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if collapsed {
		t.Error("first hunch must not collapse")
	}

	clock.t = clock.t.Add(30 * time.Minute)
	second, collapsed, err := r.Record(ctx, "u1", mac.ID, 4)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !collapsed {
		t.Error("expected second hunch to collapse")
	}
	if !second.Timestamp.Equal(first.Timestamp) {
		t.Errorf("collapsed hunch must keep original timestamp: %v != %v", second.Timestamp, first.Timestamp)
	}

	hunches, _ := store.ListHunches(ctx, comp.ID)
	if len(hunches) != 1 {
		t.Fatalf("expected 1 row, got %d", len(hunches))
	}
	if hunches[0].Score != 4 {
		t.Errorf("expected latest score 4, got %d", hunches[0].Score)
	}
}

func TestRecorder_NewRowAfterWindow(t *testing.T) {
	store, comp, mac, clock := setup(t)
	r := NewRecorder(store, WithClock(clock.Now))
	ctx := context.Background()

	if _, _, err := r.Record(ctx, "u1", mac.ID, 2); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	clock.t = clock.t.Add(61 * time.Minute)
	if _, collapsed, err := r.Record(ctx, "u1", mac.ID, 4); err != nil || collapsed {
		t.Fatalf("expected a fresh insert, collapsed=%v err=%v", collapsed, err)
	}

	hunches, _ := store.ListHunches(ctx, comp.ID)
	if len(hunches) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(hunches))
	}
}

func TestRecorder_ExactWindowBoundaryInserts(t *testing.T) {
	store, comp, mac, clock := setup(t)
	r := NewRecorder(store, WithClock(clock.Now))
	ctx := context.Background()

	_, _, _ = r.Record(ctx, "u1", mac.ID, 1)
	clock.t = clock.t.Add(time.Hour)
	_, collapsed, _ := r.Record(ctx, "u1", mac.ID, 3)
	if collapsed {
		t.Error("a hunch exactly one window old must not collapse")
	}
	if n, _ := store.CountHunches(ctx, comp.ID); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestRecorder_UsersDoNotCollapseTogether(t *testing.T) {
	store, comp, mac, clock := setup(t)
	r := NewRecorder(store, WithClock(clock.Now))
	ctx := context.Background()

	_, _, _ = r.Record(ctx, "u1", mac.ID, 1)
	_, collapsed, _ := r.Record(ctx, "u2", mac.ID, 5)
	if collapsed {
		t.Error("different users must not collapse")
	}
	if n, _ := store.CountHunches(ctx, comp.ID); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestRecorder_Validation(t *testing.T) {
	store, _, mac, clock := setup(t)
	r := NewRecorder(store, WithClock(clock.Now))

	if _, _, err := r.Record(context.Background(), "u1", mac.ID, 6); !errors.Is(err, comparison.ErrInvalidScore) {
		t.Errorf("expected ErrInvalidScore, got %v", err)
	}
	if _, _, err := r.Record(context.Background(), "u1", "missing", 3); !errors.Is(err, comparison.ErrCandidateNotFound) {
		t.Errorf("expected ErrCandidateNotFound, got %v", err)
	}
}

func TestRecorder_ConcurrentWritesCollapse(t *testing.T) {
	store, comp, mac, clock := setup(t)
	var tick atomic.Int64
	now := func() time.Time { return clock.t.Add(time.Duration(tick.Add(1)) * time.Microsecond) }
	r := NewRecorder(store, WithClock(now))
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			if _, _, err := r.Record(ctx, "u1", mac.ID, score); err != nil {
				errs <- err
			}
		}(i % 6)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Record failed: %v", err)
	}

	n, err := store.CountHunches(ctx, comp.ID)
	if err != nil {
		t.Fatalf("CountHunches failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected concurrent writes to collapse into 1 row, got %d", n)
	}
}

// sameInstantStore stores a competing hunch at the same timestamp just
// before the recorder's insert, as another API process would.
type sameInstantStore struct {
	*comparison.InMemoryStore
	raced bool
}

func (s *sameInstantStore) InsertHunch(ctx context.Context, h *comparison.Hunch) error {
	if !s.raced {
		s.raced = true
		other := *h
		other.Score = 1
		if err := s.InMemoryStore.InsertHunch(ctx, &other); err != nil {
			return err
		}
	}
	return s.InMemoryStore.InsertHunch(ctx, h)
}

func TestRecorder_DuplicateTimestampOverwrites(t *testing.T) {
	mem, comp, mac, clock := setup(t)
	store := &sameInstantStore{InMemoryStore: mem}
	r := NewRecorder(store, WithClock(clock.Now))
	ctx := context.Background()

	h, collapsed, err := r.Record(ctx, "u1", mac.ID, 4)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !collapsed || h.Score != 4 {
		t.Errorf("expected the competing row to be overwritten, got collapsed=%v %+v", collapsed, h)
	}

	hunches, err := mem.ListHunches(ctx, comp.ID)
	if err != nil {
		t.Fatalf("ListHunches failed: %v", err)
	}
	if len(hunches) != 1 || hunches[0].Score != 4 {
		t.Errorf("expected one hunch with score 4, got %+v", hunches)
	}
}
