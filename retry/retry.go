/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs operations with backoff between attempts.
// It is used for outgoing calls whose failures are expected to be transient.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/leadforge/siteapi/log"
)

// IsRetryable tells if an error is transient and the operation may be retried.
type IsRetryable func(error) bool

// RetryableFunc is an operation that can be retried.
type RetryableFunc func(ctx context.Context) error

// Policy creates a fresh backoff for every DoWithRetry call.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// DoWithRetry calls fn until it succeeds, returns a non-retryable error,
// the policy gives up or ctx is done. The last error of fn is returned.
// isRetryable may be nil, then every error is retryable. notify is called before each wait and may be nil.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	bf := backoff.WithContext(p.NewBackOff(), ctx)
	op := func() error {
		err := fn(ctx)
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, bf, notify)
}

// LogNotify returns a backoff.Notify that logs every failed attempt at warn level.
func LogNotify(logger log.FieldLogger, operation string) backoff.Notify {
	attempt := 0
	return func(err error, wait time.Duration) {
		attempt++
		logger.Warn(operation+" failed, will be retried",
			log.Int("attempt", attempt), log.Duration("wait", wait), log.Error(err))
	}
}

// ExponentialBackoffPolicy retries with exponentially growing delays.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64 // backoff.DefaultMultiplier if zero
	MaxRetries      int     // unlimited if zero
}

// NewExponentialBackoffPolicy returns an exponential policy with the default multiplier.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetries int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{InitialInterval: initialInterval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.Reset()
	return withMaxRetries(eb, p.MaxRetries)
}

// ConstantBackoffPolicy retries with the same delay.
type ConstantBackoffPolicy struct {
	Interval   time.Duration
	MaxRetries int // unlimited if zero
}

// NewConstantBackoffPolicy returns a constant policy.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries)
}

func withMaxRetries(bf backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries <= 0 {
		return bf
	}
	return backoff.WithMaxRetries(bf, uint64(maxRetries))
}
