// Package lifecycle implements ShardLifecycleManager: the per-shard owner of
// the shard's directory entry and its capacity state.
//
// A shard advertises itself with one ephemeral node under the shard path,
// named "{shardId}_{nodeIdentity}_{state}_" plus a sequence suffix. The
// state only ever becomes more restrictive:
//
//	ReadWrite -> WriteUrlsOnly -> ReadOnly
//
// Entries are never updated in place. A transition creates the new entry,
// records it as current, then deletes the old entry on a background work
// queue with capped, jittered retries. Routing clients may briefly see both
// entries; the registry resolves that by taking the more restrictive state.
package lifecycle
