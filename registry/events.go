package registry

import "github.com/arloliu/shardcoord/types"

// EventType identifies a registry event.
type EventType int

const (
	// EventShardStatusChanged carries the new online shard set.
	EventShardStatusChanged EventType = iota + 1
	// EventConnectionStateChanged carries the directory connection state.
	EventConnectionStateChanged
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventShardStatusChanged:
		return "ShardStatusChanged"
	case EventConnectionStateChanged:
		return "ConnectionStateChanged"
	default:
		return "Unknown"
	}
}

// Event is delivered to registry subscribers.
type Event struct {
	Type EventType
	// OnlineShards is set for EventShardStatusChanged.
	OnlineShards []types.ShardID
	// Connected is set for EventConnectionStateChanged.
	Connected bool
}
