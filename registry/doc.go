// Package registry implements ShardRegistry, the routing client's view of
// which shards are online and what each may accept.
//
// The registry watches the shard path of the coordination directory and
// rebuilds its snapshot from the complete children list on every
// notification. It never patches the snapshot incrementally, so missed or
// reordered notifications cannot make it drift from the directory.
//
// A shard may briefly appear twice while it replaces its entry during a
// lifecycle transition. The registry merges such duplicates by taking the
// most restrictive state.
//
// Eligibility always satisfies:
//
//	EligibleForNewUsers ⊆ EligibleForNewUrls ⊆ Online
package registry
