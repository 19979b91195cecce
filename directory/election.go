package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/shardcoord/internal/kvutil"
	"github.com/arloliu/shardcoord/internal/natsutil"
	"github.com/arloliu/shardcoord/types"
)

const leaderKeySuffix = ".leader"

// RunLeaderElection creates a lease election handle for electionPath.
//
// The handle does not touch the directory until Start.
func (d *NATS) RunLeaderElection(_ context.Context, electionPath string, identity string) (types.ElectionHandle, error) {
	if d.closed.Load() {
		return nil, types.ErrDirectoryClosed
	}
	if identity == "" {
		return nil, errors.New("election identity must not be empty")
	}

	key, err := kvutil.PathToKey(electionPath)
	if err != nil {
		return nil, err
	}

	return &leaseElection{
		d:         d,
		path:      electionPath,
		key:       key + leaderKeySuffix,
		identity:  identity,
		listeners: xsync.NewMap[uint64, types.ElectionListener](),
	}, nil
}

// leaseElection is a KV lease held by renewing a single key.
//
// Value format: "{identity}:{unixSeconds}".
type leaseElection struct {
	d        *NATS
	path     string
	key      string
	identity string

	listeners *xsync.Map[uint64, types.ElectionListener]
	nextID    atomic.Uint64

	mu        sync.Mutex
	started   bool
	stopped   bool
	isLeader  bool
	revision  uint64
	lastEvent types.ElectionEvent
	cancel    context.CancelFunc
	done      chan struct{}
}

// Start offers this identity and makes one synchronous claim attempt.
//
// Emits Offered, then ElectedComplete or ReadyComplete. A background loop
// keeps renewing or retrying every SessionTTL/3.
func (e *leaseElection) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return types.ErrElectionStopped
	}
	if e.started {
		e.mu.Unlock()
		return types.ErrElectionStarted
	}
	e.started = true
	e.mu.Unlock()

	e.emit(types.ElectionEventOffered)

	elected, err := e.tryClaim(ctx)
	if err != nil {
		e.emit(types.ElectionEventFailed)
		e.stopLoop()

		return fmt.Errorf("failed to join election %s: %w", e.path, err)
	}
	e.emitPhase(elected)

	loopCtx, cancel := context.WithCancel(e.d.ctx)
	done := make(chan struct{})

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		cancel()

		return types.ErrElectionStopped
	}
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.loop(loopCtx, done)

	return nil
}

// Stop ends participation, releasing the lease if held. Idempotent.
func (e *leaseElection) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	wasStarted := e.started
	e.mu.Unlock()

	e.stopLoop()

	var err error
	e.mu.Lock()
	isLeader, revision := e.isLeader, e.revision
	e.isLeader = false
	e.mu.Unlock()

	if isLeader {
		delErr := e.d.ephemeral.Delete(ctx, e.key, jetstream.LastRevision(revision))
		if delErr != nil && !natsutil.IsNotFound(delErr) && !natsutil.IsConflict(delErr) {
			err = fmt.Errorf("failed to release leadership of %s: %w", e.path, delErr)
		}
	}

	if wasStarted {
		e.emit(types.ElectionEventStopped)
	}

	return err
}

// LeaderIdentity reads the identity stored in the lease, "" when vacant.
func (e *leaseElection) LeaderIdentity(ctx context.Context) (string, error) {
	ctx, cancel := e.d.opContext(ctx)
	defer cancel()

	entry, err := e.d.ephemeral.Get(ctx, e.key)
	if err != nil {
		if natsutil.IsNotFound(err) {
			return "", nil
		}

		return "", fmt.Errorf("failed to read leader of %s: %w", e.path, err)
	}

	return parseLeaseIdentity(entry.Value()), nil
}

// AddListener registers an event listener.
func (e *leaseElection) AddListener(listener types.ElectionListener) func() {
	id := e.nextID.Add(1)
	e.listeners.Store(id, listener)

	return func() { e.listeners.Delete(id) }
}

func (e *leaseElection) stopLoop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (e *leaseElection) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.d.cfg.renewInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick renews a held lease or retries the claim.
func (e *leaseElection) tick(ctx context.Context) {
	e.mu.Lock()
	isLeader, revision := e.isLeader, e.revision
	e.mu.Unlock()

	if isLeader {
		opCtx, cancel := e.d.opContext(ctx)
		newRevision, err := e.d.ephemeral.Update(opCtx, e.key, e.leaseValue(), revision)
		cancel()

		if err == nil {
			e.mu.Lock()
			e.revision = newRevision
			e.mu.Unlock()

			return
		}
		if ctx.Err() != nil {
			return
		}
		if !natsutil.IsConflict(err) && !natsutil.IsNotFound(err) {
			e.d.logger.Warn("leadership renewal failed", "election_path", e.path, "error", err)
			e.emit(types.ElectionEventFailed)

			return
		}

		e.d.logger.Warn("leadership lost", "election_path", e.path, "identity", e.identity)
		e.mu.Lock()
		e.isLeader = false
		e.mu.Unlock()
	}

	elected, err := e.tryClaim(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.d.logger.Warn("election claim failed", "election_path", e.path, "error", err)
			e.emit(types.ElectionEventFailed)
		}

		return
	}
	e.emitPhase(elected)
}

// tryClaim attempts to create the lease key.
func (e *leaseElection) tryClaim(ctx context.Context) (bool, error) {
	ctx, cancel := e.d.opContext(ctx)
	defer cancel()

	revision, err := e.d.ephemeral.Create(ctx, e.key, e.leaseValue())
	if err != nil {
		if natsutil.IsConflict(err) {
			return false, nil
		}

		return false, err
	}

	e.mu.Lock()
	e.isLeader = true
	e.revision = revision
	e.mu.Unlock()

	e.d.logger.Info("leadership acquired", "election_path", e.path, "identity", e.identity)

	return true, nil
}

// emitPhase emits ElectedComplete or ReadyComplete unless already reported.
func (e *leaseElection) emitPhase(elected bool) {
	event := types.ElectionEventReadyComplete
	if elected {
		event = types.ElectionEventElectedComplete
	}

	e.mu.Lock()
	repeated := e.lastEvent == event
	e.mu.Unlock()

	if !repeated {
		e.emit(event)
	}
}

func (e *leaseElection) emit(event types.ElectionEvent) {
	e.mu.Lock()
	e.lastEvent = event
	e.mu.Unlock()

	e.listeners.Range(func(_ uint64, listener types.ElectionListener) bool {
		listener(event)
		return true
	})
}

func (e *leaseElection) leaseValue() []byte {
	return []byte(e.identity + ":" + strconv.FormatInt(time.Now().Unix(), 10))
}

func parseLeaseIdentity(value []byte) string {
	s := string(value)
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		return s[:idx]
	}

	return s
}
