package types

// Logger is the structured logger used by every coordination component.
//
// Fields are passed as alternating key-value pairs, e.g.
//
//	logger.Info("shard state changed", "shard_id", 3, "to", StateReadOnly)
//
// The method set matches zap.SugaredLogger, so one can be passed in
// directly. The slog-backed implementation lives in internal/logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)

	// Error reports a failure the component recovered from or will retry.
	Error(msg string, keysAndValues ...any)

	// Fatal logs and terminates the process. Library code never calls it;
	// it exists for command entry points sharing the same logger.
	Fatal(msg string, keysAndValues ...any)
}
