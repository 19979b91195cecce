package registry

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/shardcoord/types"
)

func entryName(id types.ShardID, node string, state types.LifecycleState, seq int) string {
	return fmt.Sprintf("%s%010d", types.EntryNamePrefix(id, node, state), seq)
}

func TestBuildView_DualEntries(t *testing.T) {
	tests := []struct {
		name     string
		states   []types.LifecycleState
		want     types.LifecycleState
		newUsers bool
		newUrls  bool
	}{
		{"single read write", []types.LifecycleState{types.StateReadWrite}, types.StateReadWrite, true, true},
		{"read write then write urls only", []types.LifecycleState{types.StateReadWrite, types.StateWriteUrlsOnly}, types.StateWriteUrlsOnly, false, true},
		{"write urls only then read write", []types.LifecycleState{types.StateWriteUrlsOnly, types.StateReadWrite}, types.StateWriteUrlsOnly, false, true},
		{"read write and read only", []types.LifecycleState{types.StateReadWrite, types.StateReadOnly}, types.StateReadOnly, false, false},
		{"write urls only and read only", []types.LifecycleState{types.StateReadOnly, types.StateWriteUrlsOnly}, types.StateReadOnly, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			children := make([]string, 0, len(tt.states))
			for i, s := range tt.states {
				children = append(children, entryName(7, "node-a", s, i+1))
			}

			v, err := buildView(children, time.Now())
			require.NoError(t, err)

			require.Equal(t, tt.want, v.states[7])
			require.Equal(t, []types.ShardID{7}, v.online)
			require.Equal(t, tt.newUsers, len(v.newUsers) == 1)
			_, ok := v.newUrls[7]
			require.Equal(t, tt.newUrls, ok)
		})
	}
}

func TestBuildView_EligibilityPartition(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	states := []types.LifecycleState{types.StateReadWrite, types.StateWriteUrlsOnly, types.StateReadOnly}

	for range 200 {
		n := rng.IntN(12)
		children := make([]string, 0, n)
		for i := range n {
			id := types.ShardID(rng.IntN(6))
			children = append(children, entryName(id, fmt.Sprintf("node-%d", rng.IntN(3)), states[rng.IntN(3)], i))
		}

		v, err := buildView(children, time.Now())
		require.NoError(t, err)

		online := map[types.ShardID]bool{}
		for _, id := range v.online {
			online[id] = true
		}
		for id := range v.newUrls {
			require.True(t, online[id], "new-url shard %d must be online", id)
		}
		for _, id := range v.newUsers {
			_, ok := v.newUrls[id]
			require.True(t, ok, "new-user shard %d must accept new urls", id)
		}
		require.True(t, slices.IsSorted(v.online))
	}
}

func TestBuildView_Corrupted(t *testing.T) {
	tests := []struct {
		name  string
		child string
	}{
		{"too few segments", "3_node-a_ReadWrite"},
		{"too many segments", "3_node_a_ReadWrite_0000000001"},
		{"bad shard id", "x_node-a_ReadWrite_0000000001"},
		{"negative shard id", "-1_node-a_ReadWrite_0000000001"},
		{"unknown state", "3_node-a_Frozen_0000000001"},
		{"empty identity", "3__ReadWrite_0000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildView([]string{entryName(1, "node-a", types.StateReadWrite, 1), tt.child}, time.Now())
			require.ErrorIs(t, err, types.ErrDirectoryCorrupted)
		})
	}
}

func TestView_Snapshot(t *testing.T) {
	now := time.Now()
	v, err := buildView([]string{
		entryName(2, "node-b", types.StateReadOnly, 1),
		entryName(1, "node-a", types.StateReadWrite, 2),
		entryName(1, "node-c", types.StateWriteUrlsOnly, 3),
		entryName(4, "node-d", types.StateReadWrite, 4),
	}, now)
	require.NoError(t, err)

	s := v.snapshot()
	require.Equal(t, []ShardStatus{
		{ShardID: 1, State: "WriteUrlsOnly", Nodes: []string{"node-a", "node-c"}},
		{ShardID: 2, State: "ReadOnly", Nodes: []string{"node-b"}},
		{ShardID: 4, State: "ReadWrite", Nodes: []string{"node-d"}},
	}, s.Shards)
	require.Equal(t, []types.ShardID{4}, s.EligibleForNewUsers)
	require.Equal(t, []types.ShardID{1, 4}, s.EligibleForNewUrls)
	require.Equal(t, now, s.UpdatedAt)
}
