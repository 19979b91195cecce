// Package kvutil provides helpers for the JetStream KV buckets backing the
// coordination directory.
package kvutil

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/shardcoord/internal/natsutil"
)

const (
	defaultBucketAttempts = 3
	bucketRetryStep       = 25 * time.Millisecond
)

// EnsureBucket creates the KV bucket described by config, or updates an
// existing bucket to match it, so a changed session TTL takes effect on
// restart. Only transient failures are retried, waiting attempt*25ms between
// tries.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - attempts: Maximum attempts (3 if <= 0)
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "shardcoord-sessions",
//	    History: 1,
//	    TTL:     15 * time.Second,
//	}, 3)
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	attempts int,
) (jetstream.KeyValue, error) {
	if attempts <= 0 {
		attempts = defaultBucketAttempts
	}

	for attempt := 1; ; attempt++ {
		kv, err := js.CreateOrUpdateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if !natsutil.IsTransient(err) || attempt >= attempts {
			return nil, fmt.Errorf("failed to ensure KV bucket %s (attempt %d/%d): %w",
				config.Bucket, attempt, attempts, err)
		}

		timer := time.NewTimer(time.Duration(attempt) * bucketRetryStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("context done while ensuring KV bucket %s: %w", config.Bucket, ctx.Err())
		case <-timer.C:
		}
	}
}
