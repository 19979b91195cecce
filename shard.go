package shardcoord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/shardcoord/election"
	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/lifecycle"
	"github.com/arloliu/shardcoord/shortid"
)

// HighWaterMarkSource reports the largest local index a shard ever allocated.
type HighWaterMarkSource interface {
	HighWaterMark(ctx context.Context) (int64, bool, error)
}

// IndexAllocator hands out local indexes within a shard's range.
type IndexAllocator interface {
	Allocate(ctx context.Context) (int64, error)
}

// Shard runs the coordination side of one shard process: it advertises the
// shard's lifecycle state, mints short identifiers from the shard's range
// and takes part in the process group's leader election.
type Shard struct {
	cfg     Config
	dir     Directory
	hwm     HighWaterMarkSource
	alloc   IndexAllocator
	logger  Logger
	metrics MetricsCollector

	lifecycle *lifecycle.Manager
	elector   *election.Elector

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewShard creates a shard orchestrator.
//
// Parameters:
//   - cfg: Configuration (defaults applied, then validated)
//   - dir: Coordination directory
//   - hwm: Allocation high-water-mark source read at Start
//   - alloc: Index allocator used by MintShortID
//   - opts: Optional logger and metrics
//
// Returns:
//   - *Shard: Shard ready to Start
//   - error: ErrInvalidConfig, ErrDirectoryRequired or ErrAllocatorRequired
func NewShard(cfg Config, dir Directory, hwm HighWaterMarkSource, alloc IndexAllocator, opts ...Option) (*Shard, error) {
	if dir == nil {
		return nil, ErrDirectoryRequired
	}
	if hwm == nil || alloc == nil {
		return nil, ErrAllocatorRequired
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)
	collector := metrics.OrNop(o.metrics)
	cfg.ValidateWithWarnings(logger)

	lm, err := lifecycle.New(dir, lifecycle.Config{
		ShardPath:    cfg.ShardPath,
		ShardID:      cfg.ShardID,
		NodeIdentity: cfg.NodeIdentity,
		Thresholds:   cfg.Thresholds,
		Cleanup:      cfg.Cleanup.queueConfig(),
	}, lifecycle.WithLogger(logger), lifecycle.WithMetrics(collector))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	elector := election.New(dir, cfg.ElectionPath, cfg.ElectionGroup, cfg.NodeIdentity,
		election.WithLogger(logger),
		election.WithMetrics(collector),
		election.WithRestartTimeout(cfg.StartupTimeout),
	)

	return &Shard{
		cfg:       cfg,
		dir:       dir,
		hwm:       hwm,
		alloc:     alloc,
		logger:    logger,
		metrics:   collector,
		lifecycle: lm,
		elector:   elector,
	}, nil
}

// Start reads the allocation high-water mark, registers the shard entry and
// joins the leader election. Errors are fatal at startup.
func (s *Shard) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	maxIndex, hasAny, err := s.hwm.HighWaterMark(ctx)
	if err != nil {
		return fmt.Errorf("failed to read allocation high-water mark: %w", err)
	}

	if err := s.lifecycle.Initialize(ctx, maxIndex, hasAny); err != nil {
		return err
	}

	if err := s.elector.Initialize(ctx); err != nil {
		return err
	}

	s.started = true
	s.logger.Info("shard started",
		"shard_id", s.cfg.ShardID,
		"node_identity", s.cfg.NodeIdentity,
		"state", s.lifecycle.State(),
	)

	return nil
}

// MintShortID allocates the next local index and returns its short
// identifier. Crossing a threshold moves the shard to a more restrictive
// state in the background.
//
// Returns:
//   - string: Encoded short identifier
//   - error: ErrNotStarted, ErrCapacityExhausted when the shard no longer
//     accepts URLs or its range is used up, or an allocator error
func (s *Shard) MintShortID(ctx context.Context) (string, error) {
	if !s.isStarted() {
		return "", ErrNotStarted
	}
	if !s.lifecycle.AllowsNewUrls() {
		return "", fmt.Errorf("%w: shard %d is %s", ErrCapacityExhausted, s.cfg.ShardID, s.lifecycle.State())
	}

	index, err := s.alloc.Allocate(ctx)
	if err != nil {
		if errors.Is(err, ErrCapacityExhausted) {
			s.lifecycle.ObserveAllocation(s.cfg.Thresholds.NewUrls)
		}

		return "", err
	}

	s.lifecycle.ObserveAllocation(index)

	return shortid.Encode(s.cfg.ShardID, index)
}

// ShardID returns the served shard.
func (s *Shard) ShardID() ShardID {
	return s.cfg.ShardID
}

// State returns the shard's lifecycle state.
func (s *Shard) State() LifecycleState {
	return s.lifecycle.State()
}

// AcceptsNewUsers reports whether new users may be placed on this shard.
func (s *Shard) AcceptsNewUsers() bool {
	return s.lifecycle.AllowsNewUsers()
}

// ChangeState forces a lifecycle transition, e.g. to drain a shard.
func (s *Shard) ChangeState(ctx context.Context, state LifecycleState) error {
	return s.lifecycle.ChangeType(ctx, state)
}

// IsMaster reports whether this process leads its election group.
func (s *Shard) IsMaster(ctx context.Context) (bool, error) {
	return s.elector.IsMaster(ctx)
}

// RunAsLeader runs task now and then every interval while this process
// leads its election group, until ctx is done or the shard stops. Use it for
// singleton work such as fleet-wide aggregation.
//
// Returns:
//   - error: nil when ctx is done, ErrNotStarted before Start,
//     ErrElectionStopped after Stop
func (s *Shard) RunAsLeader(ctx context.Context, interval time.Duration, task func(ctx context.Context) error) error {
	if !s.isStarted() {
		return ErrNotStarted
	}

	return s.elector.RunWhileMaster(ctx, interval, task)
}

// Healthy reports whether the shard is registered and its election
// participation completed the elected or ready phase.
func (s *Shard) Healthy() bool {
	return s.isStarted() && s.lifecycle.State() != StateUninitialized && s.elector.IsHealthy()
}

// Stop leaves the election, drains entry cleanup and removes the shard
// entry. Idempotent.
func (s *Shard) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.elector.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.lifecycle.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("shard stopped", "shard_id", s.cfg.ShardID)

	return errors.Join(errs...)
}

func (s *Shard) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.started && !s.stopped
}
