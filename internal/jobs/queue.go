package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTrainingFailed is logged when a training run exhausts its retries.
// The comparison keeps serving its last stored estimates.
var ErrTrainingFailed = errors.New("training failed")

// ErrQueueStopped is returned by Schedule after Stop.
var ErrQueueStopped = errors.New("training queue stopped")

// RunFunc trains one comparison. It must return promptly once ctx is done and
// must not persist results after that.
type RunFunc func(ctx context.Context, comparisonID string) error

// Scheduler accepts training requests keyed by comparison.
type Scheduler interface {
	Schedule(ctx context.Context, comparisonID string) error
}

// Default queue settings.
const (
	DefaultMaxAttempts     = 3
	DefaultTrainingTimeout = 2 * time.Minute
	DefaultInitialInterval = 200 * time.Millisecond
)

// QueueConfig configures a TrainingQueue.
type QueueConfig struct {
	// MaxAttempts bounds tries per run, including the first.
	MaxAttempts int
	// Timeout bounds a single run including retries.
	Timeout time.Duration
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for job tracking. Optional.
	Metrics Reporter
}

type runState struct {
	cancel context.CancelFunc
	dirty  bool
}

// TrainingQueue runs at most one training goroutine per comparison. A
// Schedule call for a comparison already training cancels the in-flight run
// and queues exactly one fresh run behind it.
type TrainingQueue struct {
	config QueueConfig
	run    RunFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	active  map[string]*runState
	stopped bool
	wg      sync.WaitGroup
}

// NewTrainingQueue creates a queue that trains with run.
func NewTrainingQueue(config QueueConfig, run RunFunc) *TrainingQueue {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTrainingTimeout
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = DefaultInitialInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TrainingQueue{
		config:     config,
		run:        run,
		baseCtx:    ctx,
		baseCancel: cancel,
		active:     make(map[string]*runState),
	}
}

// Schedule requests a training run for the comparison. It never blocks on training.
func (q *TrainingQueue) Schedule(_ context.Context, comparisonID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	if st, ok := q.active[comparisonID]; ok {
		st.dirty = true
		if st.cancel != nil {
			st.cancel()
		}
		return nil
	}

	st := &runState{}
	q.active[comparisonID] = st
	q.reportInFlightLocked()
	q.wg.Add(1)
	go q.loop(comparisonID, st)
	return nil
}

// loop runs training for one comparison until no newer request is pending.
func (q *TrainingQueue) loop(comparisonID string, st *runState) {
	defer q.wg.Done()

	for {
		ctx, cancel := context.WithTimeout(q.baseCtx, q.config.Timeout)
		q.mu.Lock()
		st.cancel = cancel
		st.dirty = false
		q.mu.Unlock()

		start := time.Now()
		err := q.runWithRetry(ctx, comparisonID)
		cancel()

		q.mu.Lock()
		again := st.dirty && !q.stopped
		if !again {
			delete(q.active, comparisonID)
			q.reportInFlightLocked()
		}
		q.mu.Unlock()

		if q.config.Metrics != nil {
			q.config.Metrics.ObserveJobDuration(JobTypeHunchTraining, time.Since(start).Seconds())
		}
		q.record(comparisonID, err, again)
		if !again {
			return
		}
	}
}

// runWithRetry retries run with exponential backoff up to MaxAttempts.
// Context errors stop retrying immediately.
func (q *TrainingQueue) runWithRetry(ctx context.Context, comparisonID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.config.InitialInterval
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := q.run(ctx, comparisonID)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		q.config.Logger.Warn("training attempt failed",
			"comparison_id", comparisonID,
			"attempt", attempt,
			"max_attempts", q.config.MaxAttempts,
			"error", err)
		if q.config.Metrics != nil {
			q.config.Metrics.IncJobErrors(JobTypeHunchTraining, ErrorTypeAttempt)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.config.MaxAttempts-1)), ctx)
	return backoff.Retry(op, policy)
}

func (q *TrainingQueue) record(comparisonID string, err error, superseded bool) {
	m := q.config.Metrics
	switch {
	case err == nil:
		if m != nil {
			m.IncJobsTotal(JobTypeHunchTraining, StatusSuccess)
		}
		q.config.Logger.Debug("training completed", "comparison_id", comparisonID)
	case superseded || errors.Is(err, context.Canceled):
		if m != nil {
			m.IncJobsTotal(JobTypeHunchTraining, StatusSuperseded)
		}
		q.config.Logger.Debug("training superseded", "comparison_id", comparisonID)
	default:
		errorType := ErrorTypeExhausted
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = ErrorTypeTimeout
		}
		if m != nil {
			m.IncJobsTotal(JobTypeHunchTraining, StatusFailure)
			m.IncJobErrors(JobTypeHunchTraining, errorType)
		}
		q.config.Logger.Error("training gave up; serving last estimates",
			"comparison_id", comparisonID,
			"error", fmt.Errorf("%w: %w", ErrTrainingFailed, err))
	}
}

func (q *TrainingQueue) reportInFlightLocked() {
	if q.config.Metrics != nil {
		q.config.Metrics.SetInFlight(len(q.active))
	}
}

// InFlight returns the number of comparisons currently training.
func (q *TrainingQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Wait blocks until no training is in flight. Callers must not Schedule concurrently.
func (q *TrainingQueue) Wait() {
	q.wg.Wait()
}

// Stop cancels every run and waits for goroutines to exit.
func (q *TrainingQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.baseCancel()
	q.wg.Wait()
}

// InlineScheduler trains synchronously in the caller's goroutine.
type InlineScheduler struct {
	run     RunFunc
	logger  *slog.Logger
	metrics Reporter
}

// NewInlineScheduler creates an InlineScheduler. logger and metrics may be nil.
func NewInlineScheduler(run RunFunc, logger *slog.Logger, metrics Reporter) *InlineScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineScheduler{run: run, logger: logger, metrics: metrics}
}

// Schedule runs training immediately. Failures are logged, not returned, so a
// write never fails because of training. Request cancellation does not abort it.
func (s *InlineScheduler) Schedule(ctx context.Context, comparisonID string) error {
	start := time.Now()
	err := s.run(context.WithoutCancel(ctx), comparisonID)
	if s.metrics != nil {
		s.metrics.ObserveJobDuration(JobTypeHunchInline, time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Error("inline training failed",
			"comparison_id", comparisonID,
			"error", fmt.Errorf("%w: %w", ErrTrainingFailed, err))
		if s.metrics != nil {
			s.metrics.IncJobsTotal(JobTypeHunchInline, StatusFailure)
		}
		return nil
	}
	if s.metrics != nil {
		s.metrics.IncJobsTotal(JobTypeHunchInline, StatusSuccess)
	}
	return nil
}
