/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// LeakyBucketLimiter lets each key through at a steady rate with bursts up to maxBurst extra requests.
// It's backed by the GCRA limiter of throttled (https://brandur.org/rate-limiting#gcra).
type LeakyBucketLimiter struct {
	gcra *throttled.GCRARateLimiterCtx
}

var _ Limiter = (*LeakyBucketLimiter)(nil)

// NewLeakyBucketLimiter creates a LeakyBucketLimiter.
// State of at most maxKeys keys is kept in memory, 0 means unlimited.
func NewLeakyBucketLimiter(maxRate Rate, maxBurst, maxKeys int) (*LeakyBucketLimiter, error) {
	if maxBurst < 0 {
		return nil, fmt.Errorf("max burst must not be negative, got %d", maxBurst)
	}
	store, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create GCRA store: %w", err)
	}
	quota := throttled.RateQuota{MaxRate: throttled.PerDuration(maxRate.Count, maxRate.Duration), MaxBurst: maxBurst}
	gcra, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, fmt.Errorf("create GCRA limiter: %w", err)
	}
	return &LeakyBucketLimiter{gcra: gcra}, nil
}

// Allow implements Limiter.
func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	limited, result, err := l.gcra.RateLimitCtx(ctx, key, 1)
	if err != nil {
		return false, 0, err
	}
	if !limited {
		return true, 0, nil
	}
	return false, result.RetryAfter, nil
}
