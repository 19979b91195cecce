package election

import (
	"time"

	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/types"
)

const defaultRestartTimeout = 10 * time.Second

type options struct {
	logger         types.Logger
	metrics        types.MetricsCollector
	restartTimeout time.Duration
}

// Option configures an Elector.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(o *options) { o.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) { o.metrics = metrics.OrNop(m) }
}

// WithRestartTimeout bounds a reconnect-triggered rejoin. Default: 10s.
func WithRestartTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.restartTimeout = d
		}
	}
}
