package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/shardcoord/types"
)

func TestNopMetrics(t *testing.T) {
	var m types.MetricsCollector = NewNop()

	require.NotPanics(t, func() {
		m.RecordRegistrySnapshot(3, 1, 2)
		m.RecordRegistryCorruption()
		m.RecordRegistryEventDropped()
		m.RecordFleetStates(map[types.LifecycleState]int{types.StateReadWrite: 2})
		m.RecordLifecycleTransition(types.StateReadWrite, types.StateReadOnly)
		m.RecordEntryCleanup("deleted")
		m.RecordElectionEvent("urls", types.ElectionEventElectedComplete)
		m.RecordLeadershipChange("urls", true)
		m.RecordDirectoryOperation("list", 0.01, false)
		m.RecordConnectionState(false)
	})
}

func TestOrNop(t *testing.T) {
	require.IsType(t, &NopMetrics{}, OrNop(nil))

	p := NewPrometheus(prometheus.NewRegistry(), "")
	require.Same(t, p, OrNop(p))
}

func TestPrometheusCollector_LazyRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheus(reg, "test")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}

func TestPrometheusCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordRegistrySnapshot(4, 1, 3)
	require.InDelta(t, 4, testutil.ToFloat64(p.registryOnline), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.registryNewUsers), 0)
	require.InDelta(t, 3, testutil.ToFloat64(p.registryNewUrls), 0)

	p.RecordRegistryCorruption()
	p.RecordRegistryCorruption()
	require.InDelta(t, 2, testutil.ToFloat64(p.registryCorrupted), 0)

	p.RecordFleetStates(map[types.LifecycleState]int{types.StateReadWrite: 2, types.StateReadOnly: 1})
	require.InDelta(t, 2, testutil.ToFloat64(p.fleetShards.WithLabelValues("ReadWrite")), 0)
	require.InDelta(t, 0, testutil.ToFloat64(p.fleetShards.WithLabelValues("WriteUrlsOnly")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.fleetShards.WithLabelValues("ReadOnly")), 0)

	p.RecordLifecycleTransition(types.StateReadWrite, types.StateWriteUrlsOnly)
	require.InDelta(t, 1, testutil.ToFloat64(p.lifecycleTransitions.WithLabelValues("ReadWrite", "WriteUrlsOnly")), 0)
	require.InDelta(t, float64(types.StateWriteUrlsOnly), testutil.ToFloat64(p.lifecycleState), 0)

	p.RecordEntryCleanup("absent")
	require.InDelta(t, 1, testutil.ToFloat64(p.entryCleanups.WithLabelValues("absent")), 0)

	p.RecordLeadershipChange("urls", true)
	require.InDelta(t, 1, testutil.ToFloat64(p.electionLeader.WithLabelValues("urls")), 0)
	p.RecordLeadershipChange("urls", false)
	require.InDelta(t, 0, testutil.ToFloat64(p.electionLeader.WithLabelValues("urls")), 0)

	p.RecordDirectoryOperation("delete", 0.002, true)
	p.RecordDirectoryOperation("delete", 0.002, false)
	require.InDelta(t, 1, testutil.ToFloat64(p.directoryFailures.WithLabelValues("delete")), 0)

	p.RecordConnectionState(true)
	require.InDelta(t, 1, testutil.ToFloat64(p.directoryConnected), 0)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Positive(t, count)
}
