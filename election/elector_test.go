package election

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/shardcoord/internal/logging"
	coordtest "github.com/arloliu/shardcoord/testing"
	"github.com/arloliu/shardcoord/types"
)

func newElector(t *testing.T, dir types.Directory, identity string) *Elector {
	t.Helper()

	e := New(dir, "/election", "aggregator", identity, WithLogger(coordtest.NewTestLogger(t)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})

	return e
}

func countMasters(t *testing.T, electors []*Elector) int {
	t.Helper()

	masters := 0
	for _, e := range electors {
		isMaster, err := e.IsMaster(t.Context())
		require.NoError(t, err)
		if isMaster {
			masters++
		}
	}

	return masters
}

func TestElector_IsMasterBeforeInitialize(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	e := newElector(t, dir, "node-1")

	isMaster, err := e.IsMaster(t.Context())
	require.NoError(t, err)
	require.False(t, isMaster)
	require.False(t, e.IsHealthy())
	require.Equal(t, types.ElectionEventNone, e.LastEvent())
	require.Equal(t, "/election/aggregator", e.GroupPath())
}

func TestElector_ExactlyOneMaster(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()

	electors := make([]*Elector, 0, 4)
	for i := range 4 {
		electors = append(electors, newElector(t, dir, fmt.Sprintf("node-%d", i)))
	}

	var wg sync.WaitGroup
	for _, e := range electors {
		wg.Go(func() {
			assert.NoError(t, e.Initialize(t.Context()))
		})
	}
	wg.Wait()

	require.Equal(t, 1, countMasters(t, electors))
	for _, e := range electors {
		require.True(t, e.IsHealthy(), "elector %s", e.Identity())
	}

	exists, err := dir.NodeExists(t.Context(), "/election/aggregator")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestElector_InitializeIdempotent(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	e := newElector(t, dir, "node-1")

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			assert.NoError(t, e.Initialize(t.Context()))
		})
	}
	wg.Wait()
	require.NoError(t, e.Initialize(t.Context()))

	require.Equal(t, 1, dir.Calls(coordtest.OpLeader))
	require.Equal(t, 2, dir.Calls(coordtest.OpCreatePersistent))

	isMaster, err := e.IsMaster(t.Context())
	require.NoError(t, err)
	require.True(t, isMaster)
	require.Equal(t, types.ElectionEventElectedComplete, e.LastEvent())
}

func TestElector_InitializeErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		op   string
	}{
		{"create node fails", coordtest.OpCreatePersistent},
		{"join fails", coordtest.OpLeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := coordtest.NewMemoryDirectory()
			e := newElector(t, dir, "node-1")

			dir.FailNext(tt.op, boom)
			err := e.Initialize(t.Context())
			require.ErrorIs(t, err, boom)
			require.False(t, e.IsHealthy())

			isMaster, err := e.IsMaster(t.Context())
			require.NoError(t, err)
			require.False(t, isMaster)

			require.NoError(t, e.Initialize(t.Context()))
			require.True(t, e.IsHealthy())
		})
	}
}

func TestElector_ReconnectRestart(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	first := newElector(t, dir, "node-1")
	second := newElector(t, dir, "node-2")

	require.NoError(t, first.Initialize(t.Context()))
	require.NoError(t, second.Initialize(t.Context()))
	require.Equal(t, "node-1", dir.Leader("/election/aggregator"))

	dir.SetConnected(false)

	require.Eventually(t, func() bool {
		return first.LastEvent() == types.ElectionEventStopped && second.LastEvent() == types.ElectionEventStopped
	}, 2*time.Second, 10*time.Millisecond)

	isMaster, err := first.IsMaster(t.Context())
	require.NoError(t, err)
	require.False(t, isMaster)
	require.False(t, first.IsHealthy())
	require.Empty(t, dir.Leader("/election/aggregator"))

	dir.SetConnected(true)

	require.Eventually(t, func() bool {
		return first.IsHealthy() && second.IsHealthy()
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, countMasters(t, []*Elector{first, second}))
}

func TestElector_RestartFailureIsReported(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	e := newElector(t, dir, "node-1")
	require.NoError(t, e.Initialize(t.Context()))

	dir.SetConnected(false)
	require.Eventually(t, func() bool {
		return e.LastEvent() == types.ElectionEventStopped
	}, 2*time.Second, 10*time.Millisecond)

	dir.FailNext(coordtest.OpLeader, errors.New("boom"))
	dir.SetConnected(true)

	require.Eventually(t, func() bool {
		return e.LastEvent() == types.ElectionEventFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, e.IsHealthy())
}

func TestElector_CloseHandsOverLeadership(t *testing.T) {
	dir := coordtest.NewMemoryDirectory()
	first := newElector(t, dir, "node-1")
	second := newElector(t, dir, "node-2")

	require.NoError(t, first.Initialize(t.Context()))
	require.NoError(t, second.Initialize(t.Context()))

	require.NoError(t, first.Close(t.Context()))
	require.NoError(t, first.Close(t.Context()))
	require.ErrorIs(t, first.Initialize(t.Context()), types.ErrElectionStopped)

	isMaster, err := first.IsMaster(t.Context())
	require.NoError(t, err)
	require.False(t, isMaster)

	isMaster, err = second.IsMaster(t.Context())
	require.NoError(t, err)
	require.True(t, isMaster)
}

type brokenHandle struct {
	startErr, stopErr error
}

func (h *brokenHandle) Start(context.Context) error                   { return h.startErr }
func (h *brokenHandle) Stop(context.Context) error                    { return h.stopErr }
func (h *brokenHandle) LeaderIdentity(context.Context) (string, error) { return "", nil }
func (h *brokenHandle) AddListener(types.ElectionListener) func()     { return func() {} }

// brokenElectionDirectory hands out election handles that cannot start.
type brokenElectionDirectory struct {
	*coordtest.MemoryDirectory
	handle *brokenHandle
}

func (d *brokenElectionDirectory) RunLeaderElection(context.Context, string, string) (types.ElectionHandle, error) {
	return d.handle, nil
}

type warnRecorder struct {
	*logging.NopLogger

	mu    sync.Mutex
	warns []string
}

func (w *warnRecorder) Warn(msg string, keysAndValues ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, fmt.Sprint(append([]any{msg}, keysAndValues...)...))
}

func TestElector_StartFailureReportsStopError(t *testing.T) {
	startErr := errors.New("start refused")
	stopErr := errors.New("stop refused")
	dir := &brokenElectionDirectory{
		MemoryDirectory: coordtest.NewMemoryDirectory(),
		handle:          &brokenHandle{startErr: startErr, stopErr: stopErr},
	}
	logger := &warnRecorder{NopLogger: logging.NewNop()}

	e := New(dir, "/election", "aggregator", "node-1", WithLogger(logger))
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	err := e.Initialize(t.Context())
	require.ErrorIs(t, err, startErr)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.Len(t, logger.warns, 1)
	require.Contains(t, logger.warns[0], "failed to release election handle")
	require.Contains(t, logger.warns[0], stopErr.Error())
}
