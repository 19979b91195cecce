package allocator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/shardcoord/types"
)

// DefaultKeyPrefix prefixes every shard counter key.
const DefaultKeyPrefix = "shardcoord:index"

// Client is the subset of the go-redis API the allocator uses, so tests can
// substitute it.
type Client interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Options configures NewUniversalClient.
//
// A single address connects to one node; several addresses connect to a
// cluster.
type Options struct {
	Addrs    []string
	Password string
}

// NewUniversalClient creates a go-redis universal client and checks it with
// a PING.
func NewUniversalClient(ctx context.Context, opt Options) (redis.UniversalClient, error) {
	if len(opt.Addrs) == 0 {
		return nil, errors.New("redis addrs is empty")
	}

	c := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    opt.Addrs,
		Password: opt.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return c, nil
}

// Redis allocates local indexes for one shard from a Redis counter.
type Redis struct {
	client    Client
	key       string
	shardID   types.ShardID
	rangeSize int64
}

// NewRedis creates an allocator for shardID.
//
// Parameters:
//   - client: Redis client
//   - keyPrefix: Counter key prefix (DefaultKeyPrefix when empty)
//   - shardID: Shard whose range is allocated
//   - rangeSize: Number of slots in the range
func NewRedis(client Client, keyPrefix string, shardID types.ShardID, rangeSize int64) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client must not be nil")
	}
	if rangeSize <= 0 {
		return nil, fmt.Errorf("range size must be positive, got %d", rangeSize)
	}
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &Redis{
		client:    client,
		key:       keyPrefix + ":" + shardID.String(),
		shardID:   shardID,
		rangeSize: rangeSize,
	}, nil
}

// Key returns the counter key.
func (r *Redis) Key() string {
	return r.key
}

// Allocate returns the next local index.
//
// Returns:
//   - int64: Index in [0, rangeSize)
//   - error: types.ErrCapacityExhausted once the range is used up, or a Redis error
func (r *Redis) Allocate(ctx context.Context) (int64, error) {
	n, err := r.client.Incr(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate index for shard %d: %w", r.shardID, err)
	}

	index := n - 1
	if index >= r.rangeSize {
		return 0, fmt.Errorf("%w: shard %d allocated all %d indexes", types.ErrCapacityExhausted, r.shardID, r.rangeSize)
	}

	return index, nil
}

// HighWaterMark returns the largest index ever allocated.
//
// Returns:
//   - int64: Largest allocated index
//   - bool: false when nothing was ever allocated
//   - error: Redis error or a corrupted counter
func (r *Redis) HighWaterMark(ctx context.Context) (int64, bool, error) {
	raw, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read index counter for shard %d: %w", r.shardID, err)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("index counter %s holds %q: not a non-negative integer", r.key, raw)
	}
	if n == 0 {
		return 0, false, nil
	}

	// INCR keeps counting after exhaustion; the last real index is rangeSize-1.
	return min(n, r.rangeSize) - 1, true, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
