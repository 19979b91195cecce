package workqueue

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/types"
)

// Outcome is the result of one task attempt.
type Outcome int

const (
	// OutcomeSucceeded means the task returned nil.
	OutcomeSucceeded Outcome = iota
	// OutcomeRetrying means the attempt failed and another attempt is scheduled.
	OutcomeRetrying
	// OutcomeFailed means the task gave up (permanent error or attempts exhausted).
	OutcomeFailed
	// OutcomeCanceled means the queue was stopped before the task finished.
	OutcomeCanceled
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRetrying:
		return "retry"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Task is a unit of background work.
type Task struct {
	// Name identifies the task in logs and outcome callbacks.
	Name string
	// Do performs one attempt. Wrap the error with Permanent to stop retrying.
	Do func(ctx context.Context) error
}

// OutcomeFunc observes every attempt outcome.
type OutcomeFunc func(name string, outcome Outcome, err error)

// Config controls queue capacity and retry policy.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Multiplier  float64
	// Seed makes jitter deterministic when non-zero.
	Seed int64
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     1,
		QueueSize:   64,
		MaxAttempts: 5,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Multiplier:  2.0,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Queue is a bounded background task queue.
type Queue struct {
	cfg       Config
	logger    types.Logger
	onOutcome OutcomeFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.RWMutex
	closed bool
	tasks  chan Task

	ctx    context.Context //nolint:containedctx // worker lifetime
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger types.Logger) Option {
	return func(q *Queue) { q.logger = logging.OrNop(logger) }
}

// WithOutcomeFunc registers an attempt outcome observer.
func WithOutcomeFunc(fn OutcomeFunc) Option {
	return func(q *Queue) { q.onOutcome = fn }
}

// New creates a queue and starts its workers.
//
// Zero-valued config fields take their DefaultConfig values.
func New(cfg Config, opts ...Option) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = def.Multiplier
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:       cfg,
		logger:    logging.NewNop(),
		onOutcome: func(string, Outcome, error) {},
		rng:       newRetryRNG(cfg.Seed),
		tasks:     make(chan Task, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}

	for range cfg.Workers {
		q.wg.Go(q.worker)
	}

	return q
}

// Submit enqueues a task, blocking while the queue is full.
//
// Returns:
//   - error: types.ErrQueueClosed after Close, or the context error
func (q *Queue) Submit(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return types.ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.ctx.Done():
		return types.ErrQueueClosed
	}
}

// Len returns the number of queued tasks not yet picked up by a worker.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Close stops accepting tasks and waits for queued tasks to finish.
//
// When ctx ends first, in-flight tasks are canceled (their retry waits end
// immediately) and Close returns ctx's error after the workers exit.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done

		return ctx.Err()
	}
}

func (q *Queue) worker() {
	for task := range q.tasks {
		q.run(task)
	}
}

func (q *Queue) run(task Task) {
	for attempt := 1; ; attempt++ {
		if q.ctx.Err() != nil {
			q.onOutcome(task.Name, OutcomeCanceled, q.ctx.Err())
			return
		}

		err := task.Do(q.ctx)
		if err == nil {
			q.onOutcome(task.Name, OutcomeSucceeded, nil)
			return
		}

		if q.ctx.Err() != nil && errors.Is(err, q.ctx.Err()) {
			q.logger.Debug("task canceled", "task", task.Name)
			q.onOutcome(task.Name, OutcomeCanceled, err)

			return
		}

		if IsPermanent(err) || attempt >= q.cfg.MaxAttempts {
			q.logger.Error("task failed",
				"task", task.Name,
				"attempts", attempt,
				"error", err,
			)
			q.onOutcome(task.Name, OutcomeFailed, fmt.Errorf("after %d attempts: %w", attempt, err))

			return
		}

		delay := q.nextDelay(attempt)
		q.logger.Warn("task attempt failed, retrying",
			"task", task.Name,
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)
		q.onOutcome(task.Name, OutcomeRetrying, err)

		timer := time.NewTimer(delay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			q.onOutcome(task.Name, OutcomeCanceled, q.ctx.Err())

			return
		case <-timer.C:
		}
	}
}

func (q *Queue) nextDelay(attempt int) time.Duration {
	q.rngMu.Lock()
	defer q.rngMu.Unlock()

	return retryDelay(attempt, q.cfg.BaseBackoff, q.cfg.Multiplier, q.cfg.MaxBackoff, q.rng)
}
