package registry

import (
	"slices"
	"time"

	"github.com/arloliu/shardcoord/types"
)

// ShardStatus is the merged view of one online shard.
type ShardStatus struct {
	ShardID types.ShardID `json:"shardId"`
	State   string        `json:"state"`
	// Nodes lists the node identities advertising the shard.
	Nodes []string `json:"nodes"`
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Shards              []ShardStatus   `json:"shards"`
	EligibleForNewUsers []types.ShardID `json:"eligibleForNewUsers"`
	EligibleForNewUrls  []types.ShardID `json:"eligibleForNewUrls"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// view is the registry's internal snapshot. It is replaced wholesale, never
// mutated after construction.
type view struct {
	states   map[types.ShardID]types.LifecycleState
	nodes    map[types.ShardID][]string
	online   []types.ShardID
	newUsers []types.ShardID
	newUrls  map[types.ShardID]struct{}
	updated  time.Time
}

func emptyView() *view {
	return &view{
		states:   map[types.ShardID]types.LifecycleState{},
		nodes:    map[types.ShardID][]string{},
		online:   []types.ShardID{},
		newUsers: []types.ShardID{},
		newUrls:  map[types.ShardID]struct{}{},
	}
}

// buildView parses every child name and derives the eligibility sets.
// Any unparseable name fails the whole build.
func buildView(children []string, now time.Time) (*view, error) {
	entries := make([]types.DirectoryEntry, 0, len(children))
	for _, name := range children {
		entry, err := types.ParseDirectoryEntry(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	v := emptyView()
	v.updated = now

	for _, e := range entries {
		if current, ok := v.states[e.ShardID]; ok {
			v.states[e.ShardID] = types.MostRestrictive(current, e.State)
		} else {
			v.states[e.ShardID] = e.State
		}
		if !slices.Contains(v.nodes[e.ShardID], e.NodeIdentity) {
			v.nodes[e.ShardID] = append(v.nodes[e.ShardID], e.NodeIdentity)
		}
	}

	for id, state := range v.states {
		v.online = append(v.online, id)
		if state.AllowsNewUsers() {
			v.newUsers = append(v.newUsers, id)
		}
		if state.AllowsNewUrls() {
			v.newUrls[id] = struct{}{}
		}
	}
	slices.Sort(v.online)
	slices.Sort(v.newUsers)
	for _, nodes := range v.nodes {
		slices.Sort(nodes)
	}

	return v, nil
}

func (v *view) snapshot() Snapshot {
	s := Snapshot{
		Shards:              make([]ShardStatus, 0, len(v.online)),
		EligibleForNewUsers: slices.Clone(v.newUsers),
		EligibleForNewUrls:  make([]types.ShardID, 0, len(v.newUrls)),
		UpdatedAt:           v.updated,
	}
	for _, id := range v.online {
		s.Shards = append(s.Shards, ShardStatus{
			ShardID: id,
			State:   v.states[id].String(),
			Nodes:   slices.Clone(v.nodes[id]),
		})
		if _, ok := v.newUrls[id]; ok {
			s.EligibleForNewUrls = append(s.EligibleForNewUrls, id)
		}
	}

	return s
}
