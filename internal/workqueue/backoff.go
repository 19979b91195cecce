package workqueue

import (
	"math"
	rand "math/rand/v2"
	"time"
)

const fallbackBaseBackoff = 50 * time.Millisecond

// retryDelay returns the wait after the given failed attempt (1-based).
//
// The ceiling grows as base*mult^(attempt-1), clamped to capDur when capDur
// is positive. The result is drawn from [ceiling/2, ceiling] so that shards
// retrying against the same outage spread out.
func retryDelay(attempt int, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = fallbackBaseBackoff
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if attempt < 1 {
		attempt = 1
	}

	ceiling := float64(base) * math.Pow(mult, float64(attempt-1))
	if capDur > 0 && ceiling > float64(capDur) {
		ceiling = float64(capDur)
	}
	if ceiling > math.MaxInt64/2 {
		ceiling = math.MaxInt64 / 2
	}

	half := int64(ceiling) / 2
	if half <= 0 {
		return time.Duration(ceiling)
	}

	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(half + 1)
	} else {
		jitter = rand.Int64N(half + 1) //nolint:gosec // non-crypto backoff jitter
	}

	return time.Duration(int64(ceiling) - half + jitter)
}

// newRetryRNG returns a seeded PCG source for a non-zero seed, nil otherwise.
func newRetryRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}

	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)) //nolint:gosec // deterministic test jitter
}
