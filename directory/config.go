package directory

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Config configures the NATS KV directory.
type Config struct {
	// PersistentBucket holds persistent nodes and sequence counters.
	PersistentBucket string `yaml:"persistentBucket"`

	// EphemeralBucket holds session-owned nodes and election leases.
	EphemeralBucket string `yaml:"ephemeralBucket"`

	// SessionTTL is how long an ephemeral node survives without renewal.
	// Renewals run every SessionTTL/3.
	SessionTTL time.Duration `yaml:"sessionTtl"`

	// OperationTimeout bounds each KV call (0 = caller context only).
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// PollInterval is the children-watch polling fallback period.
	PollInterval time.Duration `yaml:"pollInterval"`

	// WatchDebounce batches rapid watch events into one notification.
	WatchDebounce time.Duration `yaml:"watchDebounce"`

	// Replicas is the bucket replica count.
	Replicas int `yaml:"replicas"`

	// MemoryStorage stores buckets in memory instead of on disk.
	MemoryStorage bool `yaml:"memoryStorage"`
}

// DefaultConfig returns the default directory configuration.
func DefaultConfig() Config {
	return Config{
		PersistentBucket: "shardcoord-nodes",
		EphemeralBucket:  "shardcoord-sessions",
		SessionTTL:       15 * time.Second,
		OperationTimeout: 5 * time.Second,
		PollInterval:     2 * time.Second,
		WatchDebounce:    100 * time.Millisecond,
		Replicas:         1,
	}
}

// SetDefaults fills zero-valued fields from DefaultConfig.
func (c *Config) SetDefaults() {
	def := DefaultConfig()
	if c.PersistentBucket == "" {
		c.PersistentBucket = def.PersistentBucket
	}
	if c.EphemeralBucket == "" {
		c.EphemeralBucket = def.EphemeralBucket
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = def.OperationTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.WatchDebounce == 0 {
		c.WatchDebounce = def.WatchDebounce
	}
	if c.Replicas == 0 {
		c.Replicas = def.Replicas
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PersistentBucket == "" || c.EphemeralBucket == "" {
		return fmt.Errorf("bucket names must be set")
	}
	if c.PersistentBucket == c.EphemeralBucket {
		return fmt.Errorf("persistent and ephemeral buckets must differ (both %q)", c.PersistentBucket)
	}
	if c.SessionTTL < 300*time.Millisecond {
		return fmt.Errorf("sessionTtl must be >= 300ms, got %v", c.SessionTTL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive, got %v", c.PollInterval)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("watchDebounce must be non-negative, got %v", c.WatchDebounce)
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("operationTimeout must be non-negative, got %v", c.OperationTimeout)
	}
	if c.Replicas < 1 {
		return fmt.Errorf("replicas must be >= 1, got %d", c.Replicas)
	}

	return nil
}

func (c *Config) storage() jetstream.StorageType {
	if c.MemoryStorage {
		return jetstream.MemoryStorage
	}

	return jetstream.FileStorage
}

func (c *Config) renewInterval() time.Duration {
	return c.SessionTTL / 3
}
