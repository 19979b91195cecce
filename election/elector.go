package election

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/types"
)

// participation is one live election handle and its listener registration.
type participation struct {
	handle         types.ElectionHandle
	removeListener func()
}

// Elector participates in the leader election of one group.
//
// Initialize, Close and connection-driven restarts are serialized by a
// single mutex. Queries never take that mutex, so IsMaster and IsHealthy
// answer immediately even while a (re)join is in flight.
type Elector struct {
	dir       types.Directory
	rootPath  string
	groupPath string
	group     string
	identity  string

	logger         types.Logger
	metrics        types.MetricsCollector
	restartTimeout time.Duration

	mu              sync.Mutex
	initialized     bool
	closed          bool
	unsubscribeConn func()

	current   atomic.Pointer[participation]
	lastEvent atomic.Int32
	isLeader  atomic.Bool
	connected atomic.Bool

	ctx    context.Context //nolint:containedctx // rejoin lifetime
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an elector for <electionPath>/<group>.
//
// Parameters:
//   - dir: Coordination directory
//   - electionPath: Root of all election groups (e.g. "/election")
//   - group: Election group name
//   - identity: This instance's identity, compared by value in IsMaster
//   - opts: Optional logger, metrics and restart timeout
//
// Returns:
//   - *Elector: Elector that has not joined yet; call Initialize
func New(dir types.Directory, electionPath, group, identity string, opts ...Option) *Elector {
	o := options{
		logger:         logging.NewNop(),
		metrics:        metrics.NewNop(),
		restartTimeout: defaultRestartTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	root := strings.TrimSuffix(electionPath, "/")
	ctx, cancel := context.WithCancel(context.Background())

	e := &Elector{
		dir:            dir,
		rootPath:       root,
		groupPath:      root + "/" + group,
		group:          group,
		identity:       identity,
		logger:         o.logger,
		metrics:        o.metrics,
		restartTimeout: o.restartTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
	e.connected.Store(true)

	return e
}

// GroupPath returns the election path of this elector's group.
func (e *Elector) GroupPath() string {
	return e.groupPath
}

// Identity returns this instance's identity.
func (e *Elector) Identity() string {
	return e.identity
}

// Initialize creates the election nodes, subscribes to connection state and
// joins the election. Idempotent; concurrent calls collapse to one.
//
// Errors from the directory are returned as-is; the caller should treat
// them as fatal at startup.
func (e *Elector) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return types.ErrElectionStopped
	}
	if e.initialized {
		return nil
	}

	for _, path := range []string{e.rootPath, e.groupPath} {
		if _, err := e.dir.CreatePersistentNode(ctx, path, nil); err != nil {
			return fmt.Errorf("failed to create election node %s: %w", path, err)
		}
	}

	unsubscribe := e.dir.SubscribeConnectionState(e.onConnectionState)

	if err := e.startLocked(ctx); err != nil {
		unsubscribe()
		return err
	}

	e.unsubscribeConn = unsubscribe
	e.initialized = true

	e.logger.Info("leader elector initialized", "election_path", e.groupPath, "identity", e.identity)

	return nil
}

// IsMaster reports whether the current leader's identity equals this
// instance's identity. Returns false without error while not participating.
func (e *Elector) IsMaster(ctx context.Context) (bool, error) {
	p := e.current.Load()
	if p == nil {
		return false, nil
	}

	leader, err := p.handle.LeaderIdentity(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query leader of %s: %w", e.groupPath, err)
	}

	return leader == e.identity, nil
}

// IsHealthy reports whether the last election event completed the elected
// or ready phase.
func (e *Elector) IsHealthy() bool {
	return e.LastEvent().Healthy()
}

// LastEvent returns the last event observed from the election primitive.
func (e *Elector) LastEvent() types.ElectionEvent {
	return types.ElectionEvent(e.lastEvent.Load())
}

// Close leaves the election and stops reacting to connection changes.
// Idempotent.
func (e *Elector) Close(ctx context.Context) error {
	e.cancel()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.unsubscribeConn != nil {
		e.unsubscribeConn()
		e.unsubscribeConn = nil
	}
	err := e.stopLocked(ctx)
	e.mu.Unlock()

	e.wg.Wait()

	return err
}

// onConnectionState runs on the directory's dispatch goroutine, so the
// rejoin I/O is moved off it. Every reconcile converges on the latest state.
func (e *Elector) onConnectionState(connected bool) {
	e.connected.Store(connected)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.reconcile()
	}()
}

func (e *Elector) reconcile() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !e.initialized {
		return
	}

	connected := e.connected.Load()
	participating := e.current.Load() != nil

	switch {
	case !connected && participating:
		ctx, cancel := context.WithTimeout(e.ctx, e.restartTimeout)
		defer cancel()

		if err := e.stopLocked(ctx); err != nil {
			e.logger.Warn("failed to leave election after disconnect", "election_path", e.groupPath, "error", err)
		} else {
			e.logger.Info("left election after disconnect", "election_path", e.groupPath)
		}
	case connected && !participating:
		ctx, cancel := context.WithTimeout(e.ctx, e.restartTimeout)
		defer cancel()

		if err := e.startLocked(ctx); err != nil {
			if errors.Is(err, context.Canceled) && e.ctx.Err() != nil {
				return
			}
			e.logger.Error("failed to rejoin election after reconnect", "election_path", e.groupPath, "error", err)
			e.record(types.ElectionEventFailed)

			return
		}
		e.logger.Info("rejoined election after reconnect", "election_path", e.groupPath)
	}
}

func (e *Elector) startLocked(ctx context.Context) error {
	handle, err := e.dir.RunLeaderElection(ctx, e.groupPath, e.identity)
	if err != nil {
		return fmt.Errorf("failed to create election handle for %s: %w", e.groupPath, err)
	}

	removeListener := handle.AddListener(e.record)

	if err := handle.Start(ctx); err != nil {
		removeListener()
		if stopErr := handle.Stop(ctx); stopErr != nil {
			e.logger.Warn("failed to release election handle after start failure",
				"election_path", e.groupPath,
				"error", stopErr,
			)
		}

		return fmt.Errorf("failed to start election for %s: %w", e.groupPath, err)
	}

	e.current.Store(&participation{handle: handle, removeListener: removeListener})

	return nil
}

func (e *Elector) stopLocked(ctx context.Context) error {
	p := e.current.Swap(nil)
	if p == nil {
		return nil
	}

	err := p.handle.Stop(ctx)
	p.removeListener()
	e.setLeader(false)

	if err != nil {
		return fmt.Errorf("failed to stop election for %s: %w", e.groupPath, err)
	}

	return nil
}

// record is the election listener. It is called from inside handle methods,
// so it only touches atomics.
func (e *Elector) record(event types.ElectionEvent) {
	e.lastEvent.Store(int32(event))
	e.metrics.RecordElectionEvent(e.group, event)

	switch event {
	case types.ElectionEventElectedComplete:
		e.setLeader(true)
	case types.ElectionEventReadyComplete, types.ElectionEventFailed, types.ElectionEventStopped:
		e.setLeader(false)
	}
}

func (e *Elector) setLeader(leader bool) {
	if e.isLeader.Swap(leader) != leader {
		e.metrics.RecordLeadershipChange(e.group, leader)
		e.logger.Debug("leadership changed", "election_path", e.groupPath, "is_leader", leader)
	}
}
