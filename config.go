package shardcoord

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/shardcoord/directory"
	"github.com/arloliu/shardcoord/internal/workqueue"
	"github.com/arloliu/shardcoord/lifecycle"
	"github.com/arloliu/shardcoord/shortid"
	"github.com/arloliu/shardcoord/types"
)

// CleanupConfig controls the background deletion of replaced shard entries.
type CleanupConfig struct {
	// Workers is the number of deletion goroutines.
	Workers int `yaml:"workers"`

	// QueueSize bounds the number of pending deletions.
	QueueSize int `yaml:"queueSize"`

	// MaxAttempts caps retries of one deletion. A deletion that still fails
	// leaves the entry to expire with the session.
	MaxAttempts int `yaml:"maxAttempts"`

	// BaseBackoff is the first retry delay.
	BaseBackoff time.Duration `yaml:"baseBackoff"`

	// MaxBackoff caps the jittered retry delay.
	MaxBackoff time.Duration `yaml:"maxBackoff"`
}

func (c CleanupConfig) queueConfig() workqueue.Config {
	return workqueue.Config{
		Workers:     c.Workers,
		QueueSize:   c.QueueSize,
		MaxAttempts: c.MaxAttempts,
		BaseBackoff: c.BaseBackoff,
		MaxBackoff:  c.MaxBackoff,
	}
}

// Config is the configuration of a shard process or a routing client.
//
// All duration fields accept standard Go duration strings like "500ms", "15s".
type Config struct {
	// ShardID is the shard served by this process. Ignored by routers.
	ShardID types.ShardID `yaml:"shardId"`

	// NodeIdentity names this process in directory entries and elections.
	// Letters, digits, '-' and '=' only.
	NodeIdentity string `yaml:"nodeIdentity"`

	// ShardPath is the parent node of shard entries.
	ShardPath string `yaml:"shardPath"`

	// ElectionPath is the parent node of election groups.
	ElectionPath string `yaml:"electionPath"`

	// ElectionGroup is the election this process joins.
	ElectionGroup string `yaml:"electionGroup"`

	// Thresholds are the allocation high-water marks driving lifecycle state.
	Thresholds lifecycle.Thresholds `yaml:"thresholds"`

	// Directory configures the NATS JetStream KV coordination directory.
	Directory directory.Config `yaml:"directory"`

	// Cleanup configures replaced-entry deletion.
	Cleanup CleanupConfig `yaml:"cleanup"`

	// NATSURL is the NATS server URL.
	NATSURL string `yaml:"natsUrl"`

	// RedisAddrs are the Redis addresses of the index allocator.
	RedisAddrs []string `yaml:"redisAddrs"`

	// RedisPassword authenticates against Redis.
	RedisPassword string `yaml:"redisPassword"`

	// RedisKeyPrefix prefixes the per-shard index counters.
	RedisKeyPrefix string `yaml:"redisKeyPrefix"`

	// HTTPAddr is the listen address of the status endpoints.
	HTTPAddr string `yaml:"httpAddr"`

	// AggregationInterval is how often the election leader publishes
	// fleet-wide shard gauges.
	AggregationInterval time.Duration `yaml:"aggregationInterval"`

	// StartupTimeout bounds Start.
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout bounds Stop.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DefaultConfig returns a Config with production defaults.
//
// Returns:
//   - Config: Configuration with default values; NodeIdentity is empty
func DefaultConfig() Config {
	return Config{
		ShardPath:     lifecycle.DefaultShardPath,
		ElectionPath:  "/election",
		ElectionGroup: "shards",
		Thresholds:    lifecycle.DefaultThresholds(),
		Directory:     directory.DefaultConfig(),
		Cleanup: CleanupConfig{
			Workers:     1,
			QueueSize:   64,
			MaxAttempts: 5,
			BaseBackoff: 100 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
		},
		NATSURL:         "nats://127.0.0.1:4222",
		RedisAddrs:      []string{"127.0.0.1:6379"},
		RedisKeyPrefix:  "shardcoord:index",
		HTTPAddr:            ":8080",
		AggregationInterval: 30 * time.Second,
		StartupTimeout:      30 * time.Second,
		ShutdownTimeout:     10 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.ShardPath == "" {
		cfg.ShardPath = defaults.ShardPath
	}
	if cfg.ElectionPath == "" {
		cfg.ElectionPath = defaults.ElectionPath
	}
	if cfg.ElectionGroup == "" {
		cfg.ElectionGroup = defaults.ElectionGroup
	}
	if cfg.Thresholds == (lifecycle.Thresholds{}) {
		cfg.Thresholds = defaults.Thresholds
	}
	cfg.Directory.SetDefaults()
	if cfg.Cleanup.Workers == 0 {
		cfg.Cleanup.Workers = defaults.Cleanup.Workers
	}
	if cfg.Cleanup.QueueSize == 0 {
		cfg.Cleanup.QueueSize = defaults.Cleanup.QueueSize
	}
	if cfg.Cleanup.MaxAttempts == 0 {
		cfg.Cleanup.MaxAttempts = defaults.Cleanup.MaxAttempts
	}
	if cfg.Cleanup.BaseBackoff == 0 {
		cfg.Cleanup.BaseBackoff = defaults.Cleanup.BaseBackoff
	}
	if cfg.Cleanup.MaxBackoff == 0 {
		cfg.Cleanup.MaxBackoff = defaults.Cleanup.MaxBackoff
	}
	if cfg.NATSURL == "" {
		cfg.NATSURL = defaults.NATSURL
	}
	if len(cfg.RedisAddrs) == 0 {
		cfg.RedisAddrs = defaults.RedisAddrs
	}
	if cfg.RedisKeyPrefix == "" {
		cfg.RedisKeyPrefix = defaults.RedisKeyPrefix
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaults.HTTPAddr
	}
	if cfg.AggregationInterval == 0 {
		cfg.AggregationInterval = defaults.AggregationInterval
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

var electionGroupPattern = regexp.MustCompile(`^[-_=a-zA-Z0-9]+$`)

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - NodeIdentity is a valid entry name segment
//   - ShardID >= 0
//   - 0 < Thresholds.NewUsers < Thresholds.NewUrls <= RangeSize
//   - Directory.SessionTTL >= 3 * Directory.PollInterval
//   - ShardPath and ElectionPath are absolute
//   - Cleanup.MaxBackoff >= Cleanup.BaseBackoff
//   - AggregationInterval > 0
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if err := lifecycle.ValidateNodeIdentity(cfg.NodeIdentity); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.ShardID < 0 {
		return fmt.Errorf("%w: shardId must be >= 0, got %d", ErrInvalidConfig, cfg.ShardID)
	}
	if cfg.ShardID > shortid.Default.MaxRange() {
		return fmt.Errorf("%w: shardId %d exceeds the encodable range (max %d)",
			ErrInvalidConfig, cfg.ShardID, shortid.Default.MaxRange())
	}

	if err := cfg.Thresholds.Validate(shortid.RangeSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Directory.Validate(); err != nil {
		return fmt.Errorf("%w: directory: %w", ErrInvalidConfig, err)
	}

	if cfg.Directory.SessionTTL < 3*cfg.Directory.PollInterval {
		return fmt.Errorf(
			"%w: directory.sessionTtl (%v) must be >= 3*directory.pollInterval (%v) so expired entries are noticed within one session",
			ErrInvalidConfig, cfg.Directory.SessionTTL, cfg.Directory.PollInterval,
		)
	}

	for name, path := range map[string]string{"shardPath": cfg.ShardPath, "electionPath": cfg.ElectionPath} {
		if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
			return fmt.Errorf("%w: %s must be absolute without a trailing '/', got %q", ErrInvalidConfig, name, path)
		}
	}

	if !electionGroupPattern.MatchString(cfg.ElectionGroup) {
		return fmt.Errorf("%w: electionGroup %q must be a single path segment", ErrInvalidConfig, cfg.ElectionGroup)
	}

	if cfg.AggregationInterval <= 0 {
		return fmt.Errorf("%w: aggregationInterval must be positive, got %v", ErrInvalidConfig, cfg.AggregationInterval)
	}

	if cfg.Cleanup.MaxBackoff < cfg.Cleanup.BaseBackoff {
		return fmt.Errorf("%w: cleanup.maxBackoff (%v) must be >= cleanup.baseBackoff (%v)",
			ErrInvalidConfig, cfg.Cleanup.MaxBackoff, cfg.Cleanup.BaseBackoff)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but non-recommended values.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Directory.SessionTTL < 5*time.Second {
		logger.Warn(
			"sessionTtl is short, a brief network blip will drop shard entries",
			"sessionTtl", cfg.Directory.SessionTTL,
			"recommended", "5s or higher",
		)
	}

	if cfg.Thresholds.NewUrls-cfg.Thresholds.NewUsers < shortid.RangeSize/100 {
		logger.Warn(
			"thresholds are close together, existing users may run out of URL capacity quickly",
			"newUsers", cfg.Thresholds.NewUsers,
			"newUrls", cfg.Thresholds.NewUrls,
		)
	}

	if cfg.Cleanup.MaxAttempts > 20 {
		logger.Warn(
			"cleanup.maxAttempts is high, undeletable entries will be retried for a long time",
			"maxAttempts", cfg.Cleanup.MaxAttempts,
		)
	}
}

// LoadConfig reads a YAML configuration file, applies defaults and validates it.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Loaded configuration
//   - error: Read, parse or validation error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, applies defaults and validates it.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// TestConfig returns a configuration with fast timings for tests.
//
// Example:
//
//	cfg := shardcoord.TestConfig()
//	cfg.ShardID = 3
//	shard, err := shardcoord.NewShard(cfg, dir, alloc, alloc)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.NodeIdentity = "test-node"
	cfg.Directory.SessionTTL = time.Second
	cfg.Directory.PollInterval = 150 * time.Millisecond
	cfg.Directory.WatchDebounce = 20 * time.Millisecond
	cfg.Directory.MemoryStorage = true
	cfg.Cleanup.BaseBackoff = 5 * time.Millisecond
	cfg.Cleanup.MaxBackoff = 50 * time.Millisecond
	cfg.AggregationInterval = 50 * time.Millisecond
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second

	return cfg
}
