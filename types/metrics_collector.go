package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	RegistryMetrics
	LifecycleMetrics
	ElectionMetrics
	DirectoryMetrics
}

// RegistryMetrics defines metrics for the client-side shard registry.
type RegistryMetrics interface {
	// RecordRegistrySnapshot records a completed snapshot recompute.
	//
	// Parameters:
	//   - online: Number of online shards
	//   - newUsers: Number of shards eligible for new users
	//   - newUrls: Number of shards eligible for new URLs
	RecordRegistrySnapshot(online, newUsers, newUrls int)

	// RecordRegistryCorruption records a directory listing that could not be parsed.
	RecordRegistryCorruption()

	// RecordRegistryEventDropped records an event dropped for a slow subscriber.
	RecordRegistryEventDropped()

	// RecordFleetStates publishes the number of online shards per lifecycle
	// state. Only the elected leader calls it, so the series has one writer.
	RecordFleetStates(counts map[LifecycleState]int)
}

// LifecycleMetrics defines metrics for the shard lifecycle manager.
type LifecycleMetrics interface {
	// RecordLifecycleTransition records a completed lifecycle transition.
	RecordLifecycleTransition(from, to LifecycleState)

	// RecordEntryCleanup records the outcome of one old-entry deletion attempt.
	//
	// Parameters:
	//   - result: "deleted", "absent", "retry", "failed" or "canceled"
	RecordEntryCleanup(result string)
}

// ElectionMetrics defines metrics for leader election.
type ElectionMetrics interface {
	// RecordElectionEvent records an election event for a group.
	RecordElectionEvent(group string, event ElectionEvent)

	// RecordLeadershipChange records whether this instance leads a group.
	RecordLeadershipChange(group string, isLeader bool)
}

// DirectoryMetrics defines metrics for coordination directory operations.
type DirectoryMetrics interface {
	// RecordDirectoryOperation records the latency and outcome of a directory call.
	//
	// Parameters:
	//   - operation: "create_persistent", "create_ephemeral", "delete", "exists", "list", "renew"
	//   - duration: Time taken in seconds
	//   - success: true if the call succeeded
	RecordDirectoryOperation(operation string, duration float64, success bool)

	// RecordConnectionState records the current coordination connection state.
	RecordConnectionState(connected bool)
}
