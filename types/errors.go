package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the shardcoord module.
//
// These errors provide type-safe error checking using errors.Is().
// Components wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Codec errors - malformed client input. Callers map these to client errors,
// never to "not found" or server errors.
var (
	// ErrInvalidShortID is returned when a short identifier string is malformed.
	ErrInvalidShortID = errors.New("invalid short id")

	// ErrInvalidArgument is returned when a value cannot be encoded into a short identifier.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidCursor is returned when a pagination cursor is malformed.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidUserID is returned when a user subject string is malformed.
	ErrInvalidUserID = errors.New("invalid user id")
)

// Directory errors.
var (
	// ErrDirectoryCorrupted is returned when a directory node cannot be interpreted.
	// Observing components treat it as fatal rather than skipping the node.
	ErrDirectoryCorrupted = errors.New("directory corrupted")

	// ErrNoParent is returned when creating a node whose parent does not exist.
	ErrNoParent = errors.New("parent node does not exist")

	// ErrInvalidPath is returned when a path cannot be mapped to the directory.
	ErrInvalidPath = errors.New("invalid directory path")

	// ErrDirectoryClosed is returned when operating on a closed directory.
	ErrDirectoryClosed = errors.New("directory closed")
)

// Lifecycle errors.
var (
	// ErrNotInitialized is returned when an operation requires Initialize first.
	ErrNotInitialized = errors.New("not initialized")

	// ErrInvalidTransition is returned when a lifecycle transition would regain capability.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrLifecycleClosed is returned when operating on a closed lifecycle manager.
	ErrLifecycleClosed = errors.New("lifecycle manager closed")

	// ErrQueueClosed is returned when submitting work to a closed work queue.
	ErrQueueClosed = errors.New("work queue closed")
)

// Election errors.
var (
	// ErrElectionStopped is returned when starting a handle that was already stopped.
	ErrElectionStopped = errors.New("election handle stopped")

	// ErrElectionStarted is returned when starting a handle twice.
	ErrElectionStarted = errors.New("election handle already started")
)

// Capacity and routing errors.
var (
	// ErrCapacityExhausted is returned at service boundaries when no shard
	// (or no index within a shard) is available.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrShardOffline is returned when a short identifier routes to a shard that is not online.
	ErrShardOffline = errors.New("shard offline")
)

// Common errors - Shared errors used across multiple components.
var (
	// ErrNoKeysFound is returned when NATS KV returns no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
