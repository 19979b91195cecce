package lifecycle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arloliu/shardcoord/internal/workqueue"
	"github.com/arloliu/shardcoord/shortid"
	"github.com/arloliu/shardcoord/types"
)

// DefaultShardPath is the parent node of all shard entries.
const DefaultShardPath = "/shards"

// Config configures a Manager.
type Config struct {
	// ShardPath is the parent node of shard entries. Default: "/shards".
	ShardPath string
	// ShardID is the shard this manager advertises.
	ShardID types.ShardID
	// NodeIdentity names this process in the entry: letters, digits, '-' or '='.
	NodeIdentity string
	// Thresholds drive StateForHighWaterMark and ObserveAllocation.
	Thresholds Thresholds
	// Cleanup configures the old-entry deletion queue.
	Cleanup workqueue.Config
}

func (c *Config) setDefaults() {
	if c.ShardPath == "" {
		c.ShardPath = DefaultShardPath
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
}

func (c *Config) validate() error {
	if c.ShardID < 0 {
		return fmt.Errorf("shard id must be non-negative, got %d", c.ShardID)
	}
	if err := ValidateNodeIdentity(c.NodeIdentity); err != nil {
		return err
	}
	if !strings.HasPrefix(c.ShardPath, "/") {
		return fmt.Errorf("shard path must be absolute, got %q", c.ShardPath)
	}

	return c.Thresholds.Validate(shortid.RangeSize)
}

// '_' separates entry name segments; the rest must be a valid path segment.
var nodeIdentityPattern = regexp.MustCompile(`^[-=a-zA-Z0-9]+$`)

// ValidateNodeIdentity checks that identity can be embedded in an entry name.
func ValidateNodeIdentity(identity string) error {
	if !nodeIdentityPattern.MatchString(identity) {
		return fmt.Errorf("node identity %q must be non-empty and contain only letters, digits, '-' or '='", identity)
	}

	return nil
}
