/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/leadforge/siteapi/internal/ratelimit"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
)

// DefaultRateLimitMaxKeys is a default value of maximum keys number for the RateLimit middleware.
const DefaultRateLimitMaxKeys = 10000

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// RateLimitAlg represents a type for specifying rate-limiting algorithm.
type RateLimitAlg int

// Supported rate-limiting algorithms.
const (
	RateLimitAlgLeakyBucket RateLimitAlg = iota
	RateLimitAlgSlidingWindow
)

// Rate describes the frequency of requests.
type Rate = ratelimit.Rate

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	Alg      RateLimitAlg
	MaxBurst int

	// GetKey returns a key for the request, requests are limited separately per key.
	// The client IP resolved with TrustedProxies is used if not set.
	GetKey RateLimitGetKeyFunc

	// TrustedProxies are the reverse proxies whose forwarding headers identify the client.
	// Without them the key is the peer address and forwarding headers are ignored.
	TrustedProxies TrustedProxies

	// MaxKeys bounds the number of tracked keys. DefaultRateLimitMaxKeys is used if zero.
	MaxKeys int

	// DryRun only logs requests that exceed the limit, they are served anyway.
	DryRun bool

	// IsProduction is passed to the standardized error response.
	IsProduction bool
}

type rateLimitHandler struct {
	next    http.Handler
	limiter ratelimit.Limiter
	opts    RateLimitOpts
}

// RateLimit is a middleware that limits the rate of HTTP requests per client IP.
func RateLimit(maxRate Rate, isProduction bool) (func(next http.Handler) http.Handler, error) {
	return RateLimitWithOpts(maxRate, RateLimitOpts{IsProduction: isProduction})
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
// Rejected requests get 429 status code with Retry-After header and the standardized error in body.
func RateLimitWithOpts(maxRate Rate, opts RateLimitOpts) (func(next http.Handler) http.Handler, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate should be positive, got %s", maxRate)
	}
	if opts.GetKey == nil {
		trusted := opts.TrustedProxies
		opts.GetKey = func(r *http.Request) (string, bool, error) {
			return trusted.ClientIP(r), false, nil
		}
	}
	if opts.MaxKeys == 0 {
		opts.MaxKeys = DefaultRateLimitMaxKeys
	}

	var limiter ratelimit.Limiter
	var err error
	switch opts.Alg {
	case RateLimitAlgLeakyBucket:
		limiter, err = ratelimit.NewLeakyBucketLimiter(maxRate, opts.MaxBurst, opts.MaxKeys)
	case RateLimitAlgSlidingWindow:
		limiter, err = ratelimit.NewSlidingWindowLimiter(maxRate, opts.MaxKeys)
	default:
		err = fmt.Errorf("unknown rate limit alg")
	}
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{next: next, limiter: limiter, opts: opts}
	}, nil
}

// MustRateLimitWithOpts is a version of RateLimitWithOpts that panics if an error occurs.
func MustRateLimitWithOpts(maxRate Rate, opts RateLimitOpts) func(next http.Handler) http.Handler {
	mw, err := RateLimitWithOpts(maxRate, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := GetLoggerFromContext(ctx)

	key, bypass, err := h.opts.GetKey(r)
	if err != nil {
		restapi.RespondInternalError(rw, fmt.Errorf("get key for rate limit: %w", err),
			GetRequestIDFromContext(ctx), h.opts.IsProduction, logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}

	allow, retryAfter, err := h.limiter.Allow(ctx, key)
	if err != nil {
		restapi.RespondInternalError(rw, fmt.Errorf("rate limit: %w", err),
			GetRequestIDFromContext(ctx), h.opts.IsProduction, logger)
		return
	}
	if allow {
		h.next.ServeHTTP(rw, r)
		return
	}

	if logger != nil {
		logger = logger.With(log.String(RateLimitLogFieldKey, key), log.String(userAgentLogFieldKey, r.UserAgent()))
	}
	if h.opts.DryRun {
		if logger != nil {
			logger.Warn("too many requests, serving will be continued because of dry run mode")
		}
		h.next.ServeHTTP(rw, r)
		return
	}

	rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	restapi.RespondError(rw, restapi.ErrorParams{
		Message:      restapi.ErrMessageTooManyRequests,
		StatusCode:   http.StatusTooManyRequests,
		RequestID:    GetRequestIDFromContext(ctx),
		IsProduction: h.opts.IsProduction,
	}, logger)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
