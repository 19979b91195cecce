package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/internal/natsutil"
	"github.com/arloliu/shardcoord/internal/workqueue"
	"github.com/arloliu/shardcoord/types"
)

// Manager owns one shard's directory entry and lifecycle state.
//
// The mutex guards only in-memory fields. Directory I/O for a transition
// runs outside it, with a transition-in-progress channel making concurrent
// transitions wait for each other instead of interleaving.
type Manager struct {
	dir     types.Directory
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	cleanup *workqueue.Queue

	mu          sync.Mutex
	initialized bool
	closed      bool
	state       types.LifecycleState
	entryPath   string
	inFlight    chan struct{}

	// pending is the most restrictive state already handed to a background
	// transition by ObserveAllocation.
	pending         atomic.Int32
	unsubscribeConn func()

	ctx    context.Context //nolint:containedctx // background transition lifetime
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager and starts its cleanup workers.
//
// Returns:
//   - *Manager: Manager in the Uninitialized state
//   - error: Invalid configuration
func New(dir types.Directory, cfg Config, opts ...Option) (*Manager, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{logger: logging.NewNop(), metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dir:     dir,
		cfg:     cfg,
		logger:  o.logger,
		metrics: o.metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
	m.cleanup = workqueue.New(cfg.Cleanup,
		workqueue.WithLogger(o.logger),
		workqueue.WithOutcomeFunc(m.onCleanupOutcome),
	)

	return m, nil
}

// Initialize computes the starting state from the shard's allocation
// high-water mark and registers the shard's entry. Idempotent.
//
// Parameters:
//   - ctx: Context for the directory round trips
//   - maxIndex: Largest local index ever allocated by this shard
//   - hasAny: false when the shard never allocated an index
func (m *Manager) Initialize(ctx context.Context, maxIndex int64, hasAny bool) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	initialized := m.initialized
	m.mu.Unlock()
	if initialized {
		return nil
	}

	state := StateForHighWaterMark(maxIndex, hasAny, m.cfg.Thresholds)

	if _, err := m.dir.CreatePersistentNode(ctx, m.cfg.ShardPath, nil); err != nil {
		return fmt.Errorf("failed to create shard path %s: %w", m.cfg.ShardPath, err)
	}

	path, err := m.register(ctx, state)
	if err != nil {
		return err
	}

	unsubscribe := m.dir.SubscribeConnectionState(m.onConnectionState)

	m.mu.Lock()
	m.state = state
	m.entryPath = path
	m.initialized = true
	m.unsubscribeConn = unsubscribe
	m.mu.Unlock()

	m.pending.Store(int32(state))
	m.metrics.RecordLifecycleTransition(types.StateUninitialized, state)

	m.logger.Info("shard registered",
		"shard_id", m.cfg.ShardID,
		"state", state,
		"path", path,
		"max_index", maxIndex,
	)

	return nil
}

// ChangeType moves the shard to newState.
//
// A no-op when the shard is already in newState. The new entry is created
// before the old one is queued for deletion, so the shard is never absent
// from the directory while online.
//
// Returns:
//   - error: types.ErrNotInitialized, types.ErrInvalidTransition when newState
//     would regain capability, or the directory error creating the new entry
func (m *Manager) ChangeType(ctx context.Context, newState types.LifecycleState) error {
	if newState == types.StateUninitialized {
		return fmt.Errorf("%w: cannot move to %s", types.ErrInvalidTransition, newState)
	}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return types.ErrLifecycleClosed
	case !m.initialized:
		m.mu.Unlock()
		return types.ErrNotInitialized
	case m.state == newState:
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	// Re-check: another transition may have finished while we waited.
	m.mu.Lock()
	current := m.state
	m.mu.Unlock()

	if current == newState {
		return nil
	}
	if !newState.MoreRestrictiveThan(current) {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, current, newState)
	}

	path, err := m.register(ctx, newState)
	if err != nil {
		return err
	}

	m.mu.Lock()
	oldPath := m.entryPath
	m.state = newState
	m.entryPath = path
	m.mu.Unlock()

	m.raisePending(newState)
	m.metrics.RecordLifecycleTransition(current, newState)
	m.logger.Info("shard state changed",
		"shard_id", m.cfg.ShardID,
		"from", current,
		"to", newState,
		"path", path,
	)

	m.scheduleDelete(ctx, oldPath)

	return nil
}

// ObserveAllocation reacts to a newly allocated local index. When the index
// crosses a threshold, the transition runs in the background.
//
// Returns:
//   - bool: true if a background transition was started
func (m *Manager) ObserveAllocation(index int64) bool {
	target := StateForHighWaterMark(index, true, m.cfg.Thresholds)

	if !m.raisePending(target) {
		return false
	}

	m.mu.Lock()
	if m.closed || !m.initialized {
		m.mu.Unlock()
		return false
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		if err := m.ChangeType(m.ctx, target); err != nil && m.ctx.Err() == nil {
			m.logger.Error("background state change failed",
				"shard_id", m.cfg.ShardID,
				"state", target,
				"error", err,
			)
			// Let a later allocation retry.
			m.pending.CompareAndSwap(int32(target), int32(m.State()))
		}
	}()

	return true
}

// raisePending records target as pending if it is more restrictive than
// the pending state, and reports whether it was.
func (m *Manager) raisePending(target types.LifecycleState) bool {
	for {
		pending := m.pending.Load()
		if !target.MoreRestrictiveThan(types.LifecycleState(pending)) {
			return false
		}
		if m.pending.CompareAndSwap(pending, int32(target)) {
			return true
		}
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() types.LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// EntryPath returns the full path of the current directory entry, "" before
// Initialize.
func (m *Manager) EntryPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.entryPath
}

// AllowsNewUsers reports whether the shard accepts new users.
func (m *Manager) AllowsNewUsers() bool {
	return m.State().AllowsNewUsers()
}

// AllowsNewUrls reports whether the shard accepts new URLs.
func (m *Manager) AllowsNewUrls() bool {
	return m.State().AllowsNewUrls()
}

// PendingCleanups returns the number of queued old-entry deletions.
func (m *Manager) PendingCleanups() int {
	return m.cleanup.Len()
}

// Close stops background transitions, drains queued deletions and removes
// the shard's current entry. Idempotent.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	unsubscribe := m.unsubscribeConn
	m.unsubscribeConn = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.cancel()
	m.wg.Wait()

	var errs []error
	if err := m.waitTransition(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.cleanup.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain entry cleanup: %w", err))
	}

	if path := m.EntryPath(); path != "" {
		if _, err := m.dir.DeleteNode(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete entry %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

// register creates an ephemeral entry for state and returns its full path.
func (m *Manager) register(ctx context.Context, state types.LifecycleState) (string, error) {
	prefix := m.cfg.ShardPath + "/" + types.EntryNamePrefix(m.cfg.ShardID, m.cfg.NodeIdentity, state)

	path, err := m.dir.CreateEphemeralNode(ctx, prefix, []byte(state.String()), true)
	if err != nil {
		return "", fmt.Errorf("failed to register shard %d as %s: %w", m.cfg.ShardID, state, err)
	}

	return path, nil
}

// acquire waits until no transition is in flight and claims the slot.
func (m *Manager) acquire(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return types.ErrLifecycleClosed
		}
		if m.inFlight == nil {
			m.inFlight = make(chan struct{})
			m.mu.Unlock()

			return nil
		}
		wait := m.inFlight
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitTransition waits for a caller's in-flight transition to finish.
func (m *Manager) waitTransition(ctx context.Context) error {
	m.mu.Lock()
	wait := m.inFlight
	m.mu.Unlock()

	if wait == nil {
		return nil
	}

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	close(m.inFlight)
	m.inFlight = nil
}

// scheduleDelete queues deletion of an entry that is no longer current.
func (m *Manager) scheduleDelete(ctx context.Context, path string) {
	task := workqueue.Task{
		Name: path,
		Do: func(ctx context.Context) error {
			existed, err := m.dir.DeleteNode(ctx, path)
			if err != nil {
				if natsutil.IsTransient(err) {
					return err
				}

				return workqueue.Permanent(err)
			}
			if !existed {
				m.logger.Debug("old entry already gone", "path", path)
			}

			return nil
		},
	}

	if err := m.cleanup.Submit(ctx, task); err != nil {
		// The entry stays until the session expires.
		m.logger.Warn("failed to queue old entry deletion", "path", path, "error", err)
		m.metrics.RecordEntryCleanup(workqueue.OutcomeCanceled.String())
	}
}

func (m *Manager) onCleanupOutcome(name string, outcome workqueue.Outcome, err error) {
	m.metrics.RecordEntryCleanup(outcome.String())

	switch outcome {
	case workqueue.OutcomeSucceeded:
		m.logger.Debug("old entry deleted", "path", name)
	case workqueue.OutcomeFailed:
		m.logger.Error("giving up on old entry deletion", "path", name, "error", err)
	}
}

// onConnectionState re-registers the entry after a reconnect if the session
// expired while disconnected.
func (m *Manager) onConnectionState(connected bool) {
	if !connected {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		if err := m.ensureRegistered(m.ctx); err != nil && m.ctx.Err() == nil {
			m.logger.Error("failed to re-register shard after reconnect",
				"shard_id", m.cfg.ShardID,
				"error", err,
			)
		}
	}()
}

func (m *Manager) ensureRegistered(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	state, path := m.state, m.entryPath
	m.mu.Unlock()

	exists, err := m.dir.NodeExists(ctx, path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	newPath, err := m.register(ctx, state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.entryPath = newPath
	m.mu.Unlock()

	m.logger.Warn("shard entry was lost, re-registered",
		"shard_id", m.cfg.ShardID,
		"state", state,
		"old_path", path,
		"path", newPath,
	)

	return nil
}
