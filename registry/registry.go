package registry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/types"
)

// DefaultShardPath is the parent node watched by default.
const DefaultShardPath = "/shards"

// Registry is the client-side view of online shards.
//
// The snapshot is guarded by a reader-writer lock held only while swapping
// or reading the in-memory view, never across directory I/O.
type Registry struct {
	dir       types.Directory
	shardPath string
	logger    types.Logger
	metrics   types.MetricsCollector
	buffer    int

	mu      sync.RWMutex
	view    *view
	lastErr error

	// generation advances on every children notification. A listing is
	// applied only if no notification arrived since it was requested.
	generation atomic.Uint64

	initMu              sync.Mutex
	initialized         bool
	closed              bool
	unsubscribeConn     func()
	unsubscribeChildren func()

	// pubMu orders sends against channel close: publishers hold it shared,
	// unsubscribe and Close hold it exclusively.
	pubMu       sync.RWMutex
	subsClosed  bool
	subscribers *xsync.Map[uint64, chan Event]
	nextSubID   atomic.Uint64
}

// New creates a registry watching shardPath ("/shards" when empty).
func New(dir types.Directory, shardPath string, opts ...Option) *Registry {
	o := options{
		logger:      logging.NewNop(),
		metrics:     metrics.NewNop(),
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if shardPath == "" {
		shardPath = DefaultShardPath
	}

	return &Registry{
		dir:         dir,
		shardPath:   strings.TrimSuffix(shardPath, "/"),
		logger:      o.logger,
		metrics:     o.metrics,
		buffer:      o.eventBuffer,
		view:        emptyView(),
		subscribers: xsync.NewMap[uint64, chan Event](),
	}
}

// Initialize subscribes to connection state and shard changes, ensures the
// shard path exists, then builds the first snapshot. Idempotent.
//
// Returns:
//   - error: Directory error, or types.ErrDirectoryCorrupted when an entry
//     name cannot be parsed
func (r *Registry) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.closed {
		return types.ErrDirectoryClosed
	}
	if r.initialized {
		return nil
	}

	unsubscribeConn := r.dir.SubscribeConnectionState(r.onConnectionState)

	unsubscribeChildren, err := r.dir.SubscribeChildrenChanged(ctx, r.shardPath, r.onChildrenChanged)
	if err != nil {
		unsubscribeConn()
		return fmt.Errorf("failed to watch %s: %w", r.shardPath, err)
	}

	fail := func(err error) error {
		unsubscribeChildren()
		unsubscribeConn()

		return err
	}

	if _, err := r.dir.CreatePersistentNode(ctx, r.shardPath, nil); err != nil {
		return fail(fmt.Errorf("failed to create shard path %s: %w", r.shardPath, err))
	}

	if err := r.Refresh(ctx); err != nil {
		return fail(err)
	}

	r.unsubscribeConn = unsubscribeConn
	r.unsubscribeChildren = unsubscribeChildren
	r.initialized = true

	r.logger.Info("shard registry initialized", "path", r.shardPath, "online", r.OnlineShards())

	return nil
}

// Refresh lists the shard path and rebuilds the snapshot. The listing is
// dropped when a children notification arrives while it is in flight, since
// the notification carries the newer set.
func (r *Registry) Refresh(ctx context.Context) error {
	gen := r.generation.Load()

	children, err := r.dir.ListChildren(ctx, r.shardPath)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", r.shardPath, err)
	}

	return r.apply(children, gen)
}

// OnlineShards returns the online shards in ascending order.
func (r *Registry) OnlineShards() []types.ShardID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.view.online)
}

// IsOnline reports whether shardID has at least one entry.
func (r *Registry) IsOnline(shardID types.ShardID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.view.states[shardID]

	return ok
}

// State returns the merged state of shardID, false when offline.
func (r *Registry) State(shardID types.ShardID) (types.LifecycleState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.view.states[shardID]

	return state, ok
}

// GetShardIdForNewUser picks a shard uniformly at random among those
// accepting new users.
//
// Returns:
//   - types.ShardID: Selected shard
//   - bool: false when no shard accepts new users (capacity exhausted)
func (r *Registry) GetShardIdForNewUser() (types.ShardID, bool) { //nolint:revive // established name
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.view.newUsers) == 0 {
		return 0, false
	}

	return r.view.newUsers[rand.IntN(len(r.view.newUsers))], true
}

// ShardForKey deterministically maps key to a shard accepting new users, so
// retries of the same signup land on the same shard while the set is stable.
func (r *Registry) ShardForKey(key string) (types.ShardID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := uint64(len(r.view.newUsers))
	if n == 0 {
		return 0, false
	}

	return r.view.newUsers[xxh3.HashString(key)%n], true
}

// CanShardCreateNewUrl reports whether shardID accepts new URLs.
func (r *Registry) CanShardCreateNewUrl(shardID types.ShardID) bool { //nolint:revive // established name
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.view.newUrls[shardID]

	return ok
}

// Snapshot returns a copy of the current snapshot.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.view.snapshot()
}

// StateCounts returns the number of online shards in each lifecycle state.
func (r *Registry) StateCounts() map[types.LifecycleState]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[types.LifecycleState]int, 3)
	for _, state := range r.view.states {
		counts[state]++
	}

	return counts
}

// LastError returns the error of the most recent rebuild, nil if it succeeded.
func (r *Registry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastErr
}

// Subscribe registers an event subscriber.
//
// Events are sent without blocking; a subscriber whose buffer is full misses
// the event. The returned function unsubscribes and closes the channel.
//
// After Close the returned channel is already closed.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, r.buffer)

	r.pubMu.Lock()
	if r.subsClosed {
		r.pubMu.Unlock()
		close(ch)

		return ch, func() {}
	}
	id := r.nextSubID.Add(1)
	r.subscribers.Store(id, ch)
	r.pubMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.pubMu.Lock()
			defer r.pubMu.Unlock()

			if c, ok := r.subscribers.LoadAndDelete(id); ok {
				close(c)
			}
		})
	}

	return ch, unsubscribe
}

// Close stops watching the directory and closes every subscriber channel.
// Idempotent.
func (r *Registry) Close() {
	r.initMu.Lock()
	if r.closed {
		r.initMu.Unlock()
		return
	}
	r.closed = true
	if r.unsubscribeChildren != nil {
		r.unsubscribeChildren()
	}
	if r.unsubscribeConn != nil {
		r.unsubscribeConn()
	}
	r.initMu.Unlock()

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.subsClosed = true
	r.subscribers.Range(func(id uint64, ch chan Event) bool {
		r.subscribers.Delete(id)
		close(ch)

		return true
	})
}

func (r *Registry) onChildrenChanged(_ context.Context, children []string) error {
	return r.apply(children, r.generation.Add(1))
}

func (r *Registry) onConnectionState(connected bool) {
	r.logger.Info("directory connection state changed", "connected", connected)
	r.publish(Event{Type: EventConnectionStateChanged, Connected: connected})
}

// apply rebuilds the snapshot from the full children list read at
// generation gen. A listing older than the latest notification is dropped.
// A corrupted listing leaves the previous snapshot in place and is returned.
func (r *Registry) apply(children []string, gen uint64) error {
	v, err := buildView(children, time.Now())

	r.mu.Lock()
	if r.generation.Load() != gen {
		r.mu.Unlock()
		r.logger.Debug("stale shard listing dropped", "path", r.shardPath)

		return nil
	}
	if err != nil {
		r.lastErr = err
		r.mu.Unlock()

		r.metrics.RecordRegistryCorruption()
		r.logger.Error("shard directory is corrupted", "path", r.shardPath, "error", err)

		return err
	}

	r.view = v
	r.lastErr = nil
	r.mu.Unlock()

	r.metrics.RecordRegistrySnapshot(len(v.online), len(v.newUsers), len(v.newUrls))
	r.logger.Debug("shard registry rebuilt",
		"online", len(v.online),
		"new_users", len(v.newUsers),
		"new_urls", len(v.newUrls),
	)

	r.publish(Event{Type: EventShardStatusChanged, OnlineShards: slices.Clone(v.online)})

	return nil
}

func (r *Registry) publish(event Event) {
	r.pubMu.RLock()
	defer r.pubMu.RUnlock()

	r.subscribers.Range(func(_ uint64, ch chan Event) bool {
		select {
		case ch <- event:
		default:
			r.metrics.RecordRegistryEventDropped()
			r.logger.Debug("registry subscriber is full, event dropped", "event", event.Type)
		}

		return true
	})
}
