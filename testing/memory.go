package testing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/shardcoord/types"
)

// Operation names used by MemoryDirectory counters and fault injection.
const (
	OpCreatePersistent = "create_persistent"
	OpCreateEphemeral  = "create_ephemeral"
	OpDelete           = "delete"
	OpExists           = "exists"
	OpList             = "list"
	OpLeader           = "leader"
)

// ErrDisconnected is returned by MemoryDirectory operations while disconnected.
// It wraps nats.ErrDisconnected so callers classify it as transient.
var ErrDisconnected = fmt.Errorf("memory directory: %w", nats.ErrDisconnected)

type memNode struct {
	data      []byte
	ephemeral bool
}

// MemoryDirectory is an in-process types.Directory for tests.
//
// Children notifications are delivered synchronously on the goroutine that
// made the change, after the directory lock is released.
type MemoryDirectory struct {
	mu        sync.Mutex
	nodes     map[string]memNode
	sequences map[string]uint64
	connected bool

	calls  map[string]int
	faults map[string][]error
	delays map[string]time.Duration

	nextID      uint64
	connSubs    map[uint64]types.ConnectionStateHandler
	childSubs   map[string]map[uint64]types.ChildrenChangedHandler
	elections   map[string]*memElection
	handlerErrs []error
}

var _ types.Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty, connected directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		nodes:     make(map[string]memNode),
		sequences: make(map[string]uint64),
		connected: true,
		calls:     make(map[string]int),
		faults:    make(map[string][]error),
		delays:    make(map[string]time.Duration),
		connSubs:  make(map[uint64]types.ConnectionStateHandler),
		childSubs: make(map[string]map[uint64]types.ChildrenChangedHandler),
		elections: make(map[string]*memElection),
	}
}

// FailNext makes the next call of op return err. Calls queue up in order.
func (m *MemoryDirectory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], err)
}

// SetDelay makes every call of op sleep for d before touching state.
func (m *MemoryDirectory) SetDelay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// Calls returns how many times op was invoked (including failed calls).
func (m *MemoryDirectory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[op]
}

// HandlerErrors returns the errors returned by children handlers so far.
func (m *MemoryDirectory) HandlerErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.handlerErrs)
}

// Paths returns every node path, sorted.
func (m *MemoryDirectory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.nodes))
	for p := range m.nodes {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	return paths
}

// PutNode writes a node directly, bypassing counters, and notifies watchers.
// Useful for injecting foreign or malformed entries.
func (m *MemoryDirectory) PutNode(path string, ephemeral bool) {
	m.mu.Lock()
	m.nodes[path] = memNode{ephemeral: ephemeral}
	m.mu.Unlock()

	m.notifyChildren(parentOf(path))
}

// SetConnected changes the connection state and notifies subscribers.
func (m *MemoryDirectory) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	handlers := make([]types.ConnectionStateHandler, 0, len(m.connSubs))
	for _, h := range m.connSubs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(connected)
	}
}

// ExpireSession removes every ephemeral node and election lease, like a
// coordination session timing out.
func (m *MemoryDirectory) ExpireSession() {
	m.mu.Lock()
	parents := map[string]struct{}{}
	for p, n := range m.nodes {
		if n.ephemeral {
			delete(m.nodes, p)
			parents[parentOf(p)] = struct{}{}
		}
	}
	elections := make([]*memElection, 0, len(m.elections))
	for _, e := range m.elections {
		elections = append(elections, e)
	}
	m.mu.Unlock()

	for _, e := range elections {
		e.expire()
	}
	for p := range parents {
		m.notifyChildren(p)
	}
}

// begin counts the call, applies delay and faults, and checks connectivity.
func (m *MemoryDirectory) begin(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	delay := m.delays[op]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if queued := m.faults[op]; len(queued) > 0 {
		err := queued[0]
		m.faults[op] = queued[1:]

		return err
	}
	if !m.connected {
		return ErrDisconnected
	}

	return nil
}

// CreatePersistentNode implements types.Directory.
func (m *MemoryDirectory) CreatePersistentNode(ctx context.Context, path string, data []byte) (bool, error) {
	if err := m.begin(ctx, OpCreatePersistent); err != nil {
		return false, err
	}
	if err := validatePath(path); err != nil {
		return false, err
	}

	m.mu.Lock()
	if _, ok := m.nodes[path]; ok {
		m.mu.Unlock()
		return false, nil
	}
	m.nodes[path] = memNode{data: slices.Clone(data)}
	m.mu.Unlock()

	m.notifyChildren(parentOf(path))

	return true, nil
}

// CreateEphemeralNode implements types.Directory.
func (m *MemoryDirectory) CreateEphemeralNode(ctx context.Context, path string, data []byte, sequential bool) (string, error) {
	if err := m.begin(ctx, OpCreateEphemeral); err != nil {
		return "", err
	}
	if err := validatePath(path); err != nil {
		return "", err
	}

	parent := parentOf(path)

	m.mu.Lock()
	if parent != "/" {
		if _, ok := m.nodes[parent]; !ok {
			m.mu.Unlock()
			return "", fmt.Errorf("%w: %s", types.ErrNoParent, parent)
		}
	}

	actual := path
	if sequential {
		m.sequences[parent]++
		actual = fmt.Sprintf("%s%010d", path, m.sequences[parent])
	}
	if _, ok := m.nodes[actual]; ok {
		m.mu.Unlock()
		return "", fmt.Errorf("node %s already exists", actual)
	}
	m.nodes[actual] = memNode{data: slices.Clone(data), ephemeral: true}
	m.mu.Unlock()

	m.notifyChildren(parent)

	return actual, nil
}

// DeleteNode implements types.Directory.
func (m *MemoryDirectory) DeleteNode(ctx context.Context, path string) (bool, error) {
	if err := m.begin(ctx, OpDelete); err != nil {
		return false, err
	}

	m.mu.Lock()
	_, ok := m.nodes[path]
	delete(m.nodes, path)
	m.mu.Unlock()

	if ok {
		m.notifyChildren(parentOf(path))
	}

	return ok, nil
}

// NodeExists implements types.Directory.
func (m *MemoryDirectory) NodeExists(ctx context.Context, path string) (bool, error) {
	if err := m.begin(ctx, OpExists); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[path]

	return ok, nil
}

// ListChildren implements types.Directory.
func (m *MemoryDirectory) ListChildren(ctx context.Context, parentPath string) ([]string, error) {
	if err := m.begin(ctx, OpList); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.childrenLocked(parentPath), nil
}

func (m *MemoryDirectory) childrenLocked(parentPath string) []string {
	prefix := strings.TrimSuffix(parentPath, "/") + "/"
	children := []string{}
	for p := range m.nodes {
		name, ok := strings.CutPrefix(p, prefix)
		if ok && name != "" && !strings.Contains(name, "/") {
			children = append(children, name)
		}
	}
	slices.Sort(children)

	return children
}

// SubscribeConnectionState implements types.Directory.
func (m *MemoryDirectory) SubscribeConnectionState(handler types.ConnectionStateHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.connSubs[id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.connSubs, id)
	}
}

// SubscribeChildrenChanged implements types.Directory.
func (m *MemoryDirectory) SubscribeChildrenChanged(
	ctx context.Context,
	parentPath string,
	handler types.ChildrenChangedHandler,
) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	if m.childSubs[parentPath] == nil {
		m.childSubs[parentPath] = make(map[uint64]types.ChildrenChangedHandler)
	}
	m.childSubs[parentPath][id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.childSubs[parentPath], id)
	}, nil
}

func (m *MemoryDirectory) notifyChildren(parentPath string) {
	m.mu.Lock()
	children := m.childrenLocked(parentPath)
	handlers := make([]types.ChildrenChangedHandler, 0, len(m.childSubs[parentPath]))
	for _, h := range m.childSubs[parentPath] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		if err := h(context.Background(), slices.Clone(children)); err != nil {
			m.mu.Lock()
			m.handlerErrs = append(m.handlerErrs, err)
			m.mu.Unlock()
		}
	}
}

func validatePath(path string) error {
	if !strings.HasPrefix(path, "/") || path == "/" || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q", types.ErrInvalidPath, path)
	}

	return nil
}

func parentOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/"
	}

	return path[:idx]
}
