package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ShardID identifies a fixed, non-overlapping address-space partition.
//
// Shard IDs are assigned at provisioning time and never change for the
// lifetime of a shard.
type ShardID int64

// String returns the decimal form used in directory entry names.
func (id ShardID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// entrySeparator delimits the fields of a directory entry name.
const entrySeparator = "_"

// DirectoryEntry is a shard's advertisement in the coordination directory.
//
// The entry is materialized as one ephemeral node whose name alone carries
// every field:
//
//	{shardId}_{nodeIdentity}_{lifecycleState}_{sequence}
//
// Entries are never mutated in place. A lifecycle transition creates a new
// entry and deletes the old one.
type DirectoryEntry struct {
	ShardID      ShardID
	NodeIdentity string
	State        LifecycleState
	Name         string // full child name including the sequence suffix
}

// EntryNamePrefix builds the child name handed to a sequential ephemeral create.
//
// The trailing separator is intentional: the directory appends the sequence
// number after it.
//
// Parameters:
//   - shardID: Shard the entry describes
//   - nodeIdentity: Name of the shard process (must not contain "_")
//   - state: Advertised lifecycle state
//
// Returns:
//   - string: Name such as "3_shard-3_ReadWrite_"
func EntryNamePrefix(shardID ShardID, nodeIdentity string, state LifecycleState) string {
	return shardID.String() + entrySeparator + nodeIdentity + entrySeparator + state.String() + entrySeparator
}

// ParseDirectoryEntry parses a child name into a DirectoryEntry.
//
// Any name that does not split into exactly four "_"-delimited segments, or
// whose shard ID or state segment is invalid, is directory corruption.
//
// Parameters:
//   - name: Child node name (no parent path)
//
// Returns:
//   - DirectoryEntry: Parsed entry
//   - error: ErrDirectoryCorrupted wrapped with the offending name
func ParseDirectoryEntry(name string) (DirectoryEntry, error) {
	parts := strings.Split(name, entrySeparator)
	if len(parts) != 4 {
		return DirectoryEntry{}, fmt.Errorf("%w: invalid node name %q", ErrDirectoryCorrupted, name)
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id < 0 {
		return DirectoryEntry{}, fmt.Errorf("%w: invalid shard id in node name %q", ErrDirectoryCorrupted, name)
	}

	if parts[1] == "" {
		return DirectoryEntry{}, fmt.Errorf("%w: empty node identity in node name %q", ErrDirectoryCorrupted, name)
	}

	state, err := ParseLifecycleState(parts[2])
	if err != nil {
		return DirectoryEntry{}, fmt.Errorf("node name %q: %w", name, err)
	}

	return DirectoryEntry{
		ShardID:      ShardID(id),
		NodeIdentity: parts[1],
		State:        state,
		Name:         name,
	}, nil
}
