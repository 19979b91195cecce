// Package types provides core type definitions and interfaces shared by the
// shardcoord packages.
//
// Keeping these types in a separate package avoids import cycles between the
// root shardcoord package and the component packages (registry, lifecycle,
// election, directory).
//
// Key types:
//   - ShardID: Identifier of a fixed address-space partition
//   - LifecycleState: Read/write capability tier of a shard
//   - DirectoryEntry: Parsed shard directory node name
//   - ElectionEvent: Signal emitted by a leader election primitive
//   - Directory: Coordination directory consumed by every component
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
