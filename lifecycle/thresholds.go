package lifecycle

import (
	"fmt"

	"github.com/arloliu/shardcoord/types"
)

// Default allocation thresholds for a 10,000,000-slot shard.
const (
	DefaultThresholdNewUsers int64 = 9_000_000
	DefaultThresholdNewUrls  int64 = 9_500_000
)

// Thresholds are the allocation high-water marks at which a shard stops
// accepting new users, then new URLs.
type Thresholds struct {
	// NewUsers is the first local index at which the shard becomes WriteUrlsOnly.
	NewUsers int64 `yaml:"newUsers"`
	// NewUrls is the first local index at which the shard becomes ReadOnly.
	NewUrls int64 `yaml:"newUrls"`
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{NewUsers: DefaultThresholdNewUsers, NewUrls: DefaultThresholdNewUrls}
}

// Validate checks 0 < NewUsers < NewUrls <= rangeSize.
func (t Thresholds) Validate(rangeSize int64) error {
	if t.NewUsers <= 0 {
		return fmt.Errorf("thresholds.newUsers must be positive, got %d", t.NewUsers)
	}
	if t.NewUsers >= t.NewUrls {
		return fmt.Errorf("thresholds.newUsers (%d) must be less than thresholds.newUrls (%d)", t.NewUsers, t.NewUrls)
	}
	if t.NewUrls > rangeSize {
		return fmt.Errorf("thresholds.newUrls (%d) must not exceed the range size (%d)", t.NewUrls, rangeSize)
	}

	return nil
}

// StateForHighWaterMark maps the largest local index ever allocated by a
// shard to its lifecycle state. A shard that never allocated is ReadWrite.
func StateForHighWaterMark(maxIndex int64, hasAny bool, t Thresholds) types.LifecycleState {
	switch {
	case !hasAny || maxIndex < t.NewUsers:
		return types.StateReadWrite
	case maxIndex < t.NewUrls:
		return types.StateWriteUrlsOnly
	default:
		return types.StateReadOnly
	}
}
