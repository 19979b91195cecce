package shardcoord

// Option configures a Shard or a Router with optional dependencies.
type Option func(*options)

type options struct {
	metrics MetricsCollector
	logger  Logger
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewShard and NewRouter
//
// Example:
//
//	collector := myPrometheusCollector
//	shard, err := shardcoord.NewShard(cfg, dir, alloc, alloc, shardcoord.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewShard and NewRouter
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	router, err := shardcoord.NewRouter(cfg, dir, shardcoord.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
