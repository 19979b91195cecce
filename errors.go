package shardcoord

import (
	"errors"

	"github.com/arloliu/shardcoord/types"
)

// Sentinel errors returned by Shard and Router.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDirectoryRequired is returned when the coordination directory is nil.
	ErrDirectoryRequired = errors.New("coordination directory is required")

	// ErrAllocatorRequired is returned when the index allocator is nil.
	ErrAllocatorRequired = errors.New("index allocator is required")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when an operation requires Start first.
	ErrNotStarted = errors.New("not started")
)

// Re-exported component errors, for callers that only import this package.
var (
	ErrInvalidShortID     = types.ErrInvalidShortID
	ErrInvalidArgument    = types.ErrInvalidArgument
	ErrInvalidCursor      = types.ErrInvalidCursor
	ErrInvalidUserID      = types.ErrInvalidUserID
	ErrDirectoryCorrupted = types.ErrDirectoryCorrupted
	ErrInvalidTransition  = types.ErrInvalidTransition
	ErrCapacityExhausted  = types.ErrCapacityExhausted
	ErrShardOffline       = types.ErrShardOffline
	ErrElectionStopped    = types.ErrElectionStopped
)
