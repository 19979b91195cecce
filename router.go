package shardcoord

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/registry"
	"github.com/arloliu/shardcoord/shortid"
)

// Router answers routing questions for request handlers: which shard owns a
// short identifier or a user, and where a new user should go.
type Router struct {
	cfg      Config
	logger   Logger
	registry *registry.Registry

	mu      sync.Mutex
	started bool
}

// NewRouter creates a routing client.
//
// Only the path and directory fields of cfg are used; NodeIdentity must
// still be valid.
//
// Returns:
//   - *Router: Router ready to Start
//   - error: ErrInvalidConfig or ErrDirectoryRequired
func NewRouter(cfg Config, dir Directory, opts ...Option) (*Router, error) {
	if dir == nil {
		return nil, ErrDirectoryRequired
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

	return &Router{
		cfg:    cfg,
		logger: logger,
		registry: registry.New(dir, cfg.ShardPath,
			registry.WithLogger(logger),
			registry.WithMetrics(metrics.OrNop(o.metrics)),
		),
	}, nil
}

// Start builds the first shard snapshot and begins watching for changes.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.StartupTimeout)
	defer cancel()

	if err := r.registry.Initialize(ctx); err != nil {
		return err
	}
	r.started = true

	return nil
}

// RouteShortID returns the shard owning a short identifier.
//
// Returns:
//   - ShardID: Owning shard
//   - error: ErrInvalidShortID for malformed input, ErrShardOffline when the
//     owning shard has no entry
func (r *Router) RouteShortID(code string) (ShardID, error) {
	id, err := shortid.Decode(code)
	if err != nil {
		return 0, err
	}

	return r.online(id.Range)
}

// RouteShortURL returns the shard owning the short identifier in a short URL.
func (r *Router) RouteShortURL(rawURL string) (ShardID, error) {
	id, err := shortid.ParseURL(rawURL)
	if err != nil {
		return 0, err
	}

	return r.online(id.Range)
}

// RouteUserID returns the shard owning a "{shardId}:{localId}" user subject.
func (r *Router) RouteUserID(subject string) (ShardID, error) {
	user, err := shortid.ParseUserID(subject)
	if err != nil {
		return 0, err
	}

	return r.online(user.ShardID)
}

// ShardForNewUser picks a shard for a new user.
//
// Returns:
//   - ShardID: Selected shard
//   - error: ErrCapacityExhausted when no shard accepts new users
func (r *Router) ShardForNewUser() (ShardID, error) {
	id, ok := r.registry.GetShardIdForNewUser()
	if !ok {
		return 0, fmt.Errorf("%w: no shard accepts new users", ErrCapacityExhausted)
	}

	return id, nil
}

// ShardForNewUserKey picks a shard for a new user deterministically from a
// signup key, so a retried signup lands on the same shard.
func (r *Router) ShardForNewUserKey(key string) (ShardID, error) {
	id, ok := r.registry.ShardForKey(key)
	if !ok {
		return 0, fmt.Errorf("%w: no shard accepts new users", ErrCapacityExhausted)
	}

	return id, nil
}

// CanCreateURL reports whether shard accepts new URLs.
func (r *Router) CanCreateURL(shard ShardID) bool {
	return r.registry.CanShardCreateNewUrl(shard)
}

// OnlineShards returns the online shards in ascending order.
func (r *Router) OnlineShards() []ShardID {
	return r.registry.OnlineShards()
}

// StateCounts returns the number of online shards in each lifecycle state.
func (r *Router) StateCounts() map[LifecycleState]int {
	return r.registry.StateCounts()
}

// Snapshot returns a copy of the current shard snapshot.
func (r *Router) Snapshot() registry.Snapshot {
	return r.registry.Snapshot()
}

// Subscribe registers a registry event subscriber.
func (r *Router) Subscribe() (<-chan registry.Event, func()) {
	return r.registry.Subscribe()
}

// Healthy reports whether the router started and its last snapshot rebuild
// succeeded.
func (r *Router) Healthy() bool {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	return started && r.registry.LastError() == nil
}

// Stop stops watching the directory. Idempotent.
func (r *Router) Stop(_ context.Context) error {
	r.registry.Close()
	return nil
}

func (r *Router) online(shard ShardID) (ShardID, error) {
	if !r.registry.IsOnline(shard) {
		return 0, fmt.Errorf("%w: shard %d", ErrShardOffline, shard)
	}

	return shard, nil
}
