package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coordtest "github.com/arloliu/shardcoord/testing"
	"github.com/arloliu/shardcoord/types"
)

func TestLeaseElection_SingleLeader(t *testing.T) {
	ns, nc := coordtest.StartEmbeddedNATS(t)
	dirA := newTestDirectory(t, nc)
	dirB := newTestDirectory(t, connect(t, ns.ClientURL()))
	ctx := t.Context()

	a, err := dirA.RunLeaderElection(ctx, "/election/urls", "backend-a")
	require.NoError(t, err)
	b, err := dirB.RunLeaderElection(ctx, "/election/urls", "backend-b")
	require.NoError(t, err)

	recA := &eventRecorder{}
	recB := &eventRecorder{}
	a.AddListener(func(e types.ElectionEvent) { recA.listen(e) })
	b.AddListener(func(e types.ElectionEvent) { recB.listen(e) })

	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	require.Equal(t, []string{"Offered", "ElectedComplete"}, recA.snapshot())
	require.Equal(t, []string{"Offered", "ReadyComplete"}, recB.snapshot())

	for _, h := range []types.ElectionHandle{a, b} {
		leader, err := h.LeaderIdentity(ctx)
		require.NoError(t, err)
		require.Equal(t, "backend-a", leader)
	}

	// The leader keeps its lease past the TTL.
	time.Sleep(2 * testSessionTTL)
	leader, err := b.LeaderIdentity(ctx)
	require.NoError(t, err)
	require.Equal(t, "backend-a", leader)

	require.NoError(t, a.Stop(ctx))
	require.Equal(t, "Stopped", recA.snapshot()[len(recA.snapshot())-1])

	require.Eventually(t, func() bool {
		leader, err := b.LeaderIdentity(ctx)
		return err == nil && leader == "backend-b"
	}, 2*testSessionTTL, 20*time.Millisecond)
	require.Contains(t, recB.snapshot(), "ElectedComplete")

	require.NoError(t, b.Stop(ctx))
	leader, err = a.LeaderIdentity(ctx)
	require.NoError(t, err)
	require.Empty(t, leader)
}

func TestLeaseElection_Failover(t *testing.T) {
	ns, nc := coordtest.StartEmbeddedNATS(t)
	dirA := newTestDirectory(t, nc)
	dirB := newTestDirectory(t, connect(t, ns.ClientURL()))
	ctx := t.Context()

	a, err := dirA.RunLeaderElection(ctx, "/election/stats", "a")
	require.NoError(t, err)
	b, err := dirB.RunLeaderElection(ctx, "/election/stats", "b")
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	// Leader process dies without releasing its lease.
	dirA.cancel()

	require.Eventually(t, func() bool {
		leader, err := b.LeaderIdentity(ctx)
		return err == nil && leader == "b"
	}, 5*testSessionTTL, 50*time.Millisecond)
}

func TestLeaseElection_Lifecycle(t *testing.T) {
	_, nc := coordtest.StartEmbeddedNATS(t)
	d := newTestDirectory(t, nc)
	ctx := t.Context()

	_, err := d.RunLeaderElection(ctx, "/election/x", "")
	require.Error(t, err)
	_, err = d.RunLeaderElection(ctx, "election", "id")
	require.ErrorIs(t, err, types.ErrInvalidPath)

	h, err := d.RunLeaderElection(ctx, "/election/x", "id")
	require.NoError(t, err)

	rec := &eventRecorder{}
	remove := h.AddListener(func(e types.ElectionEvent) { rec.listen(e) })

	require.NoError(t, h.Start(ctx))
	require.ErrorIs(t, h.Start(ctx), types.ErrElectionStarted)
	require.NoError(t, h.Stop(ctx))
	require.NoError(t, h.Stop(ctx))
	require.ErrorIs(t, h.Start(ctx), types.ErrElectionStopped)

	require.Equal(t, []string{"Offered", "ElectedComplete", "Stopped"}, rec.snapshot())

	remove()
	never, err := d.RunLeaderElection(ctx, "/election/y", "id")
	require.NoError(t, err)
	require.NoError(t, never.Stop(ctx))
}

func TestParseLeaseIdentity(t *testing.T) {
	require.Equal(t, "backend-1", parseLeaseIdentity([]byte("backend-1:1700000000")))
	require.Equal(t, "host:8080", parseLeaseIdentity([]byte("host:8080:1700000000")))
	require.Equal(t, "bare", parseLeaseIdentity([]byte("bare")))
}
