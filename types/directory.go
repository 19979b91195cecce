package types

import "context"

// ConnectionStateHandler receives coordination connection state changes.
//
// Handlers are invoked from the directory's own dispatch goroutine and must
// not block for long.
type ConnectionStateHandler func(connected bool)

// ChildrenChangedHandler receives the full, current list of child names of a
// watched parent path.
//
// The list is never a delta. A returned error is reported by the directory
// (logged and counted) and does not stop future notifications.
type ChildrenChangedHandler func(ctx context.Context, children []string) error

// Directory is the hierarchical coordination service consumed by every
// component in this module.
//
// Paths are "/"-separated (e.g. "/shards/3_shard-3_ReadWrite_0000000001").
// Ephemeral nodes disappear automatically when the owning session is lost.
//
// Implementations:
//   - directory.NATS (JetStream KV, production)
//   - testing.MemoryDirectory (in-process, tests)
//
// Every method that performs I/O accepts a context and must honor cancellation.
type Directory interface {
	// CreatePersistentNode creates a persistent node.
	//
	// Returns:
	//   - bool: true if created, false if it already existed
	//   - error: Coordination error
	CreatePersistentNode(ctx context.Context, path string, data []byte) (bool, error)

	// CreateEphemeralNode creates a node owned by this session.
	//
	// When sequential is true the directory appends a monotonically increasing
	// sequence number to the last path segment.
	//
	// Returns:
	//   - string: Actual path of the created node
	//   - error: ErrNoParent if the parent does not exist, or coordination error
	CreateEphemeralNode(ctx context.Context, path string, data []byte, sequential bool) (string, error)

	// DeleteNode deletes a node.
	//
	// Returns:
	//   - bool: true if the node existed, false if it was already absent
	//   - error: Coordination error
	DeleteNode(ctx context.Context, path string) (bool, error)

	// NodeExists reports whether a node exists.
	NodeExists(ctx context.Context, path string) (bool, error)

	// ListChildren returns the names (not full paths) of the direct children of a node.
	ListChildren(ctx context.Context, parentPath string) ([]string, error)

	// SubscribeConnectionState registers a connection state handler.
	//
	// Returns:
	//   - func(): Unsubscribe function (idempotent)
	SubscribeConnectionState(handler ConnectionStateHandler) func()

	// SubscribeChildrenChanged registers a handler for children changes under parentPath.
	//
	// Returns:
	//   - func(): Unsubscribe function (idempotent)
	//   - error: Error if the watch could not be established
	SubscribeChildrenChanged(ctx context.Context, parentPath string, handler ChildrenChangedHandler) (func(), error)

	// RunLeaderElection creates an election handle for electionPath.
	//
	// The handle does not participate until Start is called.
	RunLeaderElection(ctx context.Context, electionPath string, identity string) (ElectionHandle, error)
}
