package shardcoord

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/shardcoord/lifecycle"
	"github.com/arloliu/shardcoord/shortid"
	coordtest "github.com/arloliu/shardcoord/testing"
	"github.com/arloliu/shardcoord/types"
)

// memAllocator is an in-process counter standing in for the Redis allocator.
type memAllocator struct {
	mu       sync.Mutex
	next     int64
	limit    int64
	hwmErr   error
	allocErr error
}

func (a *memAllocator) Allocate(context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.allocErr != nil {
		return 0, a.allocErr
	}
	if a.next >= a.limit {
		return 0, ErrCapacityExhausted
	}
	idx := a.next
	a.next++

	return idx, nil
}

func (a *memAllocator) HighWaterMark(context.Context) (int64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hwmErr != nil {
		return 0, false, a.hwmErr
	}
	if a.next == 0 {
		return 0, false, nil
	}

	return a.next - 1, true, nil
}

func testShardConfig() Config {
	cfg := TestConfig()
	cfg.ShardID = 3
	cfg.NodeIdentity = "shard-3a"
	cfg.Thresholds = lifecycle.Thresholds{NewUsers: 3, NewUrls: 5}

	return cfg
}

func newTestShard(t *testing.T, dir Directory, cfg Config, alloc *memAllocator) *Shard {
	t.Helper()

	s, err := NewShard(cfg, dir, alloc, alloc, WithLogger(coordtest.NewTestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	return s
}

func TestNewShard_Validation(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	alloc := &memAllocator{limit: 10}

	_, err := NewShard(testShardConfig(), nil, alloc, alloc)
	require.ErrorIs(t, err, ErrDirectoryRequired)

	_, err = NewShard(testShardConfig(), dir, nil, alloc)
	require.ErrorIs(t, err, ErrAllocatorRequired)

	cfg := testShardConfig()
	cfg.NodeIdentity = "bad_name"
	_, err = NewShard(cfg, dir, alloc, alloc)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestShard_Lifecycle(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	alloc := &memAllocator{limit: 10}
	s := newTestShard(t, dir, testShardConfig(), alloc)

	_, err := s.MintShortID(t.Context())
	require.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, s.Start(t.Context()))
	require.ErrorIs(t, s.Start(t.Context()), ErrAlreadyStarted)

	require.Equal(t, ShardID(3), s.ShardID())
	require.Equal(t, StateReadWrite, s.State())
	require.True(t, s.AcceptsNewUsers())
	require.Eventually(t, s.Healthy, 2*time.Second, 10*time.Millisecond)

	master, err := s.IsMaster(t.Context())
	require.NoError(t, err)
	require.True(t, master)

	for want := range int64(3) {
		code, err := s.MintShortID(t.Context())
		require.NoError(t, err)

		id, err := shortid.Decode(code)
		require.NoError(t, err)
		require.Equal(t, ShardID(3), id.Range)
		require.Equal(t, want, id.Index)
	}
	require.Equal(t, StateReadWrite, s.State())

	// Index 3 crosses the new-user threshold.
	_, err = s.MintShortID(t.Context())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.State() == StateWriteUrlsOnly },
		2*time.Second, 10*time.Millisecond)
	require.False(t, s.AcceptsNewUsers())

	// Index 4 is still below the URL threshold, index 5 crosses it.
	_, err = s.MintShortID(t.Context())
	require.NoError(t, err)
	_, err = s.MintShortID(t.Context())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.State() == StateReadOnly },
		2*time.Second, 10*time.Millisecond)

	_, err = s.MintShortID(t.Context())
	require.ErrorIs(t, err, ErrCapacityExhausted)

	require.NoError(t, s.Stop(t.Context()))
	require.NoError(t, s.Stop(t.Context()))
	require.False(t, s.Healthy())

	_, err = s.MintShortID(t.Context())
	require.ErrorIs(t, err, ErrNotStarted)

	children, err := dir.ListChildren(t.Context(), "/shards")
	require.NoError(t, err)
	require.Empty(t, children, "stop removes the shard entry")
}

func TestShard_StartFromHighWaterMark(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	alloc := &memAllocator{next: 4, limit: 10}
	s := newTestShard(t, dir, testShardConfig(), alloc)

	require.NoError(t, s.Start(t.Context()))
	require.Equal(t, StateWriteUrlsOnly, s.State())
	require.False(t, s.AcceptsNewUsers())

	children, err := dir.ListChildren(t.Context(), "/shards")
	require.NoError(t, err)
	require.Len(t, children, 1)

	entry, err := types.ParseDirectoryEntry(children[0])
	require.NoError(t, err)
	require.Equal(t, ShardID(3), entry.ShardID)
	require.Equal(t, "shard-3a", entry.NodeIdentity)
	require.Equal(t, StateWriteUrlsOnly, entry.State)
}

func TestShard_StartFailures(t *testing.T) {
	t.Run("high-water mark unavailable", func(t *testing.T) {
		dir := coordtest.NewMemoryDirectory()
		hwmErr := errors.New("redis down")
		alloc := &memAllocator{limit: 10, hwmErr: hwmErr}
		s := newTestShard(t, dir, testShardConfig(), alloc)

		require.ErrorIs(t, s.Start(t.Context()), hwmErr)
		require.Empty(t, dir.Paths())
	})

	t.Run("directory unavailable", func(t *testing.T) {
		dir := coordtest.NewMemoryDirectory()
		dir.SetConnected(false)
		alloc := &memAllocator{limit: 10}
		s := newTestShard(t, dir, testShardConfig(), alloc)

		require.Error(t, s.Start(t.Context()))
		require.False(t, s.Healthy())
	})
}

func TestShard_AllocatorExhaustion(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	alloc := &memAllocator{limit: 1}
	cfg := testShardConfig()
	cfg.Thresholds = lifecycle.Thresholds{NewUsers: 100, NewUrls: 200}
	s := newTestShard(t, dir, cfg, alloc)
	require.NoError(t, s.Start(t.Context()))

	_, err := s.MintShortID(t.Context())
	require.NoError(t, err)

	_, err = s.MintShortID(t.Context())
	require.ErrorIs(t, err, ErrCapacityExhausted)

	require.Eventually(t, func() bool { return s.State() == StateReadOnly },
		2*time.Second, 10*time.Millisecond)
}

func TestShard_ChangeState(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	alloc := &memAllocator{limit: 10}
	s := newTestShard(t, dir, testShardConfig(), alloc)
	require.NoError(t, s.Start(t.Context()))

	require.NoError(t, s.ChangeState(t.Context(), StateReadOnly))
	require.Equal(t, StateReadOnly, s.State())

	require.ErrorIs(t, s.ChangeState(t.Context(), StateReadWrite), ErrInvalidTransition)
	require.ErrorIs(t, s.ChangeState(t.Context(), StateUninitialized), ErrInvalidTransition)
}

func TestShard_SecondNodeIsNotMaster(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()

	first := newTestShard(t, dir, testShardConfig(), &memAllocator{limit: 10})
	require.NoError(t, first.Start(t.Context()))

	cfg := testShardConfig()
	cfg.ShardID = 4
	cfg.NodeIdentity = "shard-4a"
	second := newTestShard(t, dir, cfg, &memAllocator{limit: 10})
	require.NoError(t, second.Start(t.Context()))

	master, err := second.IsMaster(t.Context())
	require.NoError(t, err)
	require.False(t, master)

	require.NoError(t, first.Stop(t.Context()))

	require.Eventually(t, func() bool {
		master, err := second.IsMaster(t.Context())
		return err == nil && master
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShard_RunAsLeader(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()

	first := newTestShard(t, dir, testShardConfig(), &memAllocator{limit: 10})
	noop := func(context.Context) error { return nil }
	require.ErrorIs(t, first.RunAsLeader(t.Context(), time.Millisecond, noop), ErrNotStarted)
	require.NoError(t, first.Start(t.Context()))

	cfg := testShardConfig()
	cfg.ShardID = 4
	cfg.NodeIdentity = "shard-4a"
	second := newTestShard(t, dir, cfg, &memAllocator{limit: 10})
	require.NoError(t, second.Start(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var firstRuns, secondRuns atomic.Int64
	done := make(chan error, 2)
	go func() {
		done <- first.RunAsLeader(ctx, 5*time.Millisecond, func(context.Context) error {
			firstRuns.Add(1)
			return nil
		})
	}()
	go func() {
		done <- second.RunAsLeader(ctx, 5*time.Millisecond, func(context.Context) error {
			secondRuns.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return firstRuns.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, secondRuns.Load())

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}
