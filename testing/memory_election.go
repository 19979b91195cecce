package testing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/arloliu/shardcoord/types"
)

// RunLeaderElection implements types.Directory.
//
// The first started candidate leads; later candidates follow in start order
// and take over when the leader stops.
func (m *MemoryDirectory) RunLeaderElection(_ context.Context, electionPath string, identity string) (types.ElectionHandle, error) {
	if identity == "" {
		return nil, errors.New("election identity must not be empty")
	}
	if err := validatePath(electionPath); err != nil {
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.elections[electionPath]
	if !ok {
		e = &memElection{path: electionPath}
		m.elections[electionPath] = e
	}
	m.mu.Unlock()

	return &memHandle{dir: m, election: e, identity: identity, listeners: make(map[uint64]types.ElectionListener)}, nil
}

// Leader returns the identity currently leading electionPath, "" when vacant.
func (m *MemoryDirectory) Leader(electionPath string) string {
	m.mu.Lock()
	e := m.elections[electionPath]
	m.mu.Unlock()

	if e == nil {
		return ""
	}

	return e.leaderIdentity()
}

type memElection struct {
	path string

	mu         sync.Mutex
	candidates []*memHandle
	leader     *memHandle
}

func (e *memElection) leaderIdentity() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.leader == nil {
		return ""
	}

	return e.leader.identity
}

// join appends h and reports whether it became the leader.
func (e *memElection) join(h *memHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.candidates = append(e.candidates, h)
	if e.leader == nil {
		e.leader = h
		return true
	}

	return false
}

// leave removes h and returns the promoted successor, if any.
func (e *memElection) leave(h *memHandle) *memHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.candidates = slices.DeleteFunc(e.candidates, func(c *memHandle) bool { return c == h })
	if e.leader != h {
		return nil
	}

	e.leader = nil
	if len(e.candidates) > 0 {
		e.leader = e.candidates[0]
	}

	return e.leader
}

// expire drops the lease and lets the first candidate reclaim it.
func (e *memElection) expire() {
	e.mu.Lock()
	previous := e.leader
	e.leader = nil
	if len(e.candidates) > 0 {
		e.leader = e.candidates[0]
	}
	next := e.leader
	e.mu.Unlock()

	if next != nil && next != previous {
		next.emit(types.ElectionEventElectedComplete)
	}
}

type memHandle struct {
	dir      *MemoryDirectory
	election *memElection
	identity string

	emitMu    sync.Mutex
	mu        sync.Mutex
	started   bool
	stopped   bool
	nextID    uint64
	listeners map[uint64]types.ElectionListener
}

func (h *memHandle) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return types.ErrElectionStopped
	}
	if h.started {
		h.mu.Unlock()
		return types.ErrElectionStarted
	}
	h.started = true
	h.mu.Unlock()

	h.emit(types.ElectionEventOffered)

	if err := h.dir.begin(ctx, OpLeader); err != nil {
		h.emit(types.ElectionEventFailed)
		return fmt.Errorf("failed to join election %s: %w", h.election.path, err)
	}

	if h.election.join(h) {
		h.emit(types.ElectionEventElectedComplete)
	} else {
		h.emit(types.ElectionEventReadyComplete)
	}

	return nil
}

func (h *memHandle) Stop(_ context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	wasStarted := h.started
	h.mu.Unlock()

	if !wasStarted {
		return nil
	}

	if next := h.election.leave(h); next != nil {
		next.emit(types.ElectionEventElectedComplete)
	}
	h.emit(types.ElectionEventStopped)

	return nil
}

func (h *memHandle) LeaderIdentity(ctx context.Context) (string, error) {
	if err := h.dir.begin(ctx, OpLeader); err != nil {
		return "", err
	}

	return h.election.leaderIdentity(), nil
}

func (h *memHandle) AddListener(listener types.ElectionListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.listeners[id] = listener

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// emit delivers event unless the handle already stopped, so Stopped is
// always the last event a listener sees.
func (h *memHandle) emit(event types.ElectionEvent) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	if h.stopped && event != types.ElectionEventStopped {
		h.mu.Unlock()
		return
	}
	listeners := make([]types.ElectionListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}
