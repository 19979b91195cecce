// Package logging provides types.Logger implementations used across shardcoord.
//
// Components default to the no-op logger and accept a real one through their
// WithLogger option. Production binaries wrap a *slog.Logger with NewSlog.
package logging
