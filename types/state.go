package types

import "fmt"

// LifecycleState is a shard's read/write capability tier.
//
// States only ever move towards more restrictive tiers:
//
//	ReadWrite → WriteUrlsOnly → ReadOnly
//
// Uninitialized is the zero value and is never advertised in the directory.
type LifecycleState int

const (
	// StateUninitialized indicates the shard has not computed its state yet.
	StateUninitialized LifecycleState = iota

	// StateReadWrite accepts new users, new URLs and reads.
	StateReadWrite

	// StateWriteUrlsOnly accepts new URLs for existing users and reads, but no new users.
	StateWriteUrlsOnly

	// StateReadOnly serves reads only.
	StateReadOnly
)

// String returns the directory name of the state.
func (s LifecycleState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateReadWrite:
		return "ReadWrite"
	case StateWriteUrlsOnly:
		return "WriteUrlsOnly"
	case StateReadOnly:
		return "ReadOnly"
	default:
		return "Unknown"
	}
}

// ParseLifecycleState parses a state from its directory name.
//
// Parameters:
//   - s: State name as produced by String()
//
// Returns:
//   - LifecycleState: Parsed state
//   - error: ErrDirectoryCorrupted wrapped with the offending value if unknown
func ParseLifecycleState(s string) (LifecycleState, error) {
	switch s {
	case "Uninitialized":
		return StateUninitialized, nil
	case "ReadWrite":
		return StateReadWrite, nil
	case "WriteUrlsOnly":
		return StateWriteUrlsOnly, nil
	case "ReadOnly":
		return StateReadOnly, nil
	default:
		return StateUninitialized, fmt.Errorf("%w: unknown lifecycle state %q", ErrDirectoryCorrupted, s)
	}
}

// restrictiveness orders states by how much capability they remove.
// Uninitialized grants nothing routable but ranks lowest so it never masks a real state.
func (s LifecycleState) restrictiveness() int {
	switch s {
	case StateReadWrite:
		return 1
	case StateWriteUrlsOnly:
		return 2
	case StateReadOnly:
		return 3
	default:
		return 0
	}
}

// MoreRestrictiveThan reports whether s removes strictly more capability than other.
func (s LifecycleState) MoreRestrictiveThan(other LifecycleState) bool {
	return s.restrictiveness() > other.restrictiveness()
}

// MostRestrictive returns the more restrictive of two states.
func MostRestrictive(a, b LifecycleState) LifecycleState {
	if b.MoreRestrictiveThan(a) {
		return b
	}

	return a
}

// AllowsNewUsers reports whether a shard in this state may receive new users.
func (s LifecycleState) AllowsNewUsers() bool {
	return s == StateReadWrite
}

// AllowsNewUrls reports whether a shard in this state may create new URLs.
func (s LifecycleState) AllowsNewUrls() bool {
	return s == StateReadWrite || s == StateWriteUrlsOnly
}
