package directory

import (
	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/types"
)

type options struct {
	logger  types.Logger
	metrics types.MetricsCollector
}

// Option configures a NATS directory.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(o *options) { o.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) { o.metrics = metrics.OrNop(m) }
}
