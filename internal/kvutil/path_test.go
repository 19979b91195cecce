package kvutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/shardcoord/types"
)

func TestPathToKey(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "/shards", want: "shards"},
		{path: "/shards/3_shard-3_ReadWrite_0000000001", want: "shards.3_shard-3_ReadWrite_0000000001"},
		{path: "/election/urls/leader", want: "election.urls.leader"},
		{path: "/a=b/c", want: "a=b.c"},
		{path: "shards", wantErr: true},
		{path: "/", wantErr: true},
		{path: "", wantErr: true},
		{path: "/shards//x", wantErr: true},
		{path: "/shards/", wantErr: true},
		{path: "/shards/a.b", wantErr: true},
		{path: "/shards/a*", wantErr: true},
		{path: "/shards/a b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := PathToKey(tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, types.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.path, KeyToPath(got))
		})
	}
}

func TestParentKey(t *testing.T) {
	parent, ok := ParentKey("shards.3_a_ReadWrite_1")
	require.True(t, ok)
	require.Equal(t, "shards", parent)

	parent, ok = ParentKey("election.urls.leader")
	require.True(t, ok)
	require.Equal(t, "election.urls", parent)

	_, ok = ParentKey("shards")
	require.False(t, ok)
}

func TestChildName(t *testing.T) {
	name, ok := ChildName("shards", "shards.1_a_ReadWrite_0000000001")
	require.True(t, ok)
	require.Equal(t, "1_a_ReadWrite_0000000001", name)

	_, ok = ChildName("shards", "shards")
	require.False(t, ok)
	_, ok = ChildName("shards", "shards.x.y")
	require.False(t, ok)
	_, ok = ChildName("shards", "shardsx.y")
	require.False(t, ok)
	_, ok = ChildName("shards", "other.y")
	require.False(t, ok)
}

func TestJoinPath(t *testing.T) {
	require.Equal(t, "/shards/x", JoinPath("/shards", "x"))
	require.Equal(t, "/shards/x", JoinPath("/shards/", "x"))
}
