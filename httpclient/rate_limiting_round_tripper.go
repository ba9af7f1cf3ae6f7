/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperAdaptation makes the limiter follow the limit a downstream service announces
// in a response header (e.g. X-RateLimit-Limit). SlackPercent of the announced limit is left unused.
type RateLimitingRoundTripperAdaptation struct {
	ResponseHeaderName string
	SlackPercent       int
}

// RateLimitingRoundTripperOpts represents options for NewRateLimitingRoundTripperWithOpts.
// Zero Burst and WaitTimeout mean the defaults.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

func (opts *RateLimitingRoundTripperOpts) applyDefaults() error {
	switch {
	case opts.Burst < 0:
		return fmt.Errorf("burst cannot be negative, got %d", opts.Burst)
	case opts.WaitTimeout < 0:
		return fmt.Errorf("wait timeout cannot be negative, got %s", opts.WaitTimeout)
	case opts.Adaptation.SlackPercent < 0 || opts.Adaptation.SlackPercent > 100:
		return fmt.Errorf("slack percent must be in range [0..100], got %d", opts.Adaptation.SlackPercent)
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	return nil
}

// RateLimitingRoundTripper keeps outgoing requests under RateLimit requests per second.
// A request that cannot get its turn within WaitTimeout fails with RateLimitingWaitError.
type RateLimitingRoundTripper struct {
	Delegate    http.RoundTripper
	RateLimit   int
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation

	limiter *rate.Limiter
}

// NewRateLimitingRoundTripper creates a RateLimitingRoundTripper with the default options.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a RateLimitingRoundTripper.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", rateLimit)
	}
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	rt := &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
		Adaptation:  opts.Adaptation,
	}
	rt.limiter = rate.NewLimiter(rt.configuredLimit(), rt.Burst)
	return rt, nil
}

func (rt *RateLimitingRoundTripper) configuredLimit() rate.Limit {
	return rate.Limit(rt.RateLimit)
}

// RoundTrip implements http.RoundTripper.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := rt.wait(r.Context()); err != nil {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, err
	}
	resp, err := rt.Delegate.RoundTrip(r)
	if err == nil && rt.Adaptation.ResponseHeaderName != "" {
		rt.limiter.SetLimit(rt.adaptedLimit(resp.Header.Get(rt.Adaptation.ResponseHeaderName)))
	}
	return resp, err
}

func (rt *RateLimitingRoundTripper) wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rt.WaitTimeout)
	defer cancel()
	if err := rt.limiter.Wait(ctx); err != nil {
		return &RateLimitingWaitError{Inner: err}
	}
	return nil
}

// adaptedLimit derives the limit from the announced value. It never exceeds the configured limit
// and falls back to it when the header is missing or malformed.
func (rt *RateLimitingRoundTripper) adaptedLimit(announced string) rate.Limit {
	limit, err := strconv.Atoi(announced)
	if err != nil || limit <= 0 {
		return rt.configuredLimit()
	}
	limit = max(limit*(100-rt.Adaptation.SlackPercent)/100, 1)
	return min(rate.Limit(limit), rt.configuredLimit())
}

// RateLimitingWaitError is returned when a request could not get its turn in time.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return "wait due to client side rate limiting: " + e.Inner.Error()
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
