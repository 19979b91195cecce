// Package directory implements types.Directory on NATS JetStream KV.
//
// The hierarchical coordination model is emulated with two buckets:
//
//   - a persistent bucket (History 1, no TTL) for parent nodes and sequence counters
//   - an ephemeral bucket (History 1, TTL = SessionTTL) for session-owned nodes
//
// Paths map to keys by dropping the leading "/" and replacing "/" with ".".
// Every ephemeral node created through a directory instance joins that
// instance's session: a background loop rewrites each owned key every
// SessionTTL/3 using a revision-checked update, so a node whose owner stops
// renewing (crash, partition, Close) expires after SessionTTL. A key whose
// revision moved or that vanished is dropped from the session and never
// recreated.
//
// Children watches combine a KV watcher (debounced) with polling every
// PollInterval, since TTL expiry does not produce a watch event. Each
// notification carries the full current child list.
//
// Leader election is a KV lease on "<electionKey>.leader" in the ephemeral
// bucket: Create claims it, revision-checked Update renews it, and TTL expiry
// releases it when the leader disappears.
package directory
