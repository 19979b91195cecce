package registry

import (
	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/types"
)

const defaultEventBuffer = 16

type options struct {
	logger      types.Logger
	metrics     types.MetricsCollector
	eventBuffer int
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(o *options) { o.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) { o.metrics = metrics.OrNop(m) }
}

// WithEventBuffer sets the per-subscriber channel capacity. Default: 16.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}
