// Package allocator hands out local indexes within a shard's range.
//
// Redis holds one counter per shard. INCR makes allocation atomic across
// every process serving the shard, and the counter value doubles as the
// shard's allocation high-water mark at startup.
package allocator
