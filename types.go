package shardcoord

import "github.com/arloliu/shardcoord/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on this package, which keeps
// the import graph acyclic while users still write shardcoord.ShardID.
type (
	ShardID        = types.ShardID
	LifecycleState = types.LifecycleState
	ElectionEvent  = types.ElectionEvent
	DirectoryEntry = types.DirectoryEntry
)

// Re-export interfaces from the types package.
type (
	Directory        = types.Directory
	ElectionHandle   = types.ElectionHandle
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
)

// Re-export lifecycle states.
const (
	StateUninitialized = types.StateUninitialized
	StateReadWrite     = types.StateReadWrite
	StateWriteUrlsOnly = types.StateWriteUrlsOnly
	StateReadOnly      = types.StateReadOnly
)
