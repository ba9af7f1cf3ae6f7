/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/retry"
)

// UnlimitedRetryAttempts should be used as RetryableRoundTripperOpts.MaxRetryAttempts value
// when retries are stopped only by RetryableRoundTripperOpts.BackoffPolicy.
const UnlimitedRetryAttempts = -1

// RetryAttemptNumberHeader is an HTTP header name that contains the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc is called right after every attempt and determines if the next retry attempt is needed.
type CheckRetryFunc func(ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error) (bool, error)

// RetryableRoundTripperOpts represents an options for RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	// LoggerProvider returns a context-specific logger, middleware.GetLoggerFromContext is used if nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts limits retries, so the request is sent at most MaxRetryAttempts+1 times.
	// DefaultMaxRetryAttempts is used if zero.
	MaxRetryAttempts int

	// CheckRetryFunc is DefaultCheckRetry if nil.
	CheckRetryFunc CheckRetryFunc

	// IgnoreRetryAfter disables using Retry-After response header as the wait time.
	IgnoreRetryAfter bool

	// BackoffPolicy computes the wait time between attempts, DefaultBackoffPolicy is used if nil.
	BackoffPolicy retry.Policy
}

// RetryableRoundTripper retries failed requests.
// The request body is buffered (or rewound if it implements io.Seeker) between attempts.
type RetryableRoundTripper struct {
	Delegate         http.RoundTripper
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	CheckRetry       CheckRetryFunc
	IgnoreRetryAfter bool
	BackoffPolicy    retry.Policy
}

// NewRetryableRoundTripper returns a new instance of RetryableRoundTripper.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a new instance of RetryableRoundTripper with specified options.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 && opts.MaxRetryAttempts != UnlimitedRetryAttempts {
		return nil, fmt.Errorf("incorrect max retry attempts %d", opts.MaxRetryAttempts)
	}
	if opts.MaxRetryAttempts == 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.CheckRetryFunc == nil {
		opts.CheckRetryFunc = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = DefaultBackoffPolicy
	}
	return &RetryableRoundTripper{
		Delegate:         delegate,
		LoggerProvider:   opts.LoggerProvider,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		IgnoreRetryAfter: opts.IgnoreRetryAfter,
		BackoffPolicy:    opts.BackoffPolicy,
	}, nil
}

// RoundTrip performs request with retry logic.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:gocyclo
	ctx := req.Context()
	logger := rt.logger(ctx)

	rewindReqBody := func(*http.Request) error { return nil }
	if req.Body != nil && req.Body != http.NoBody {
		originalBody := req.Body
		defer func() { _ = originalBody.Close() }() // Per RoundTripper contract.
		req = req.Clone(ctx)
		var err error
		if rewindReqBody, err = makeRequestBodyRewindable(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	bf := rt.BackoffPolicy.NewBackOff()
	var resp *http.Response
	var roundTripErr error
	for attempt := 0; ; attempt++ {
		if err := rewindReqBody(req); err != nil {
			if attempt == 0 {
				return nil, &RetryableRoundTripperError{Inner: err}
			}
			logger.Error(fmt.Sprintf("failed to rewind request body, %d request(s) done", attempt), log.Error(err))
			return resp, roundTripErr
		}

		if resp != nil && roundTripErr == nil {
			drainResponseBody(logger, resp)
		}

		if attempt > 0 {
			if attempt == 1 {
				req = req.Clone(ctx) // Per RoundTripper contract.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}

		resp, roundTripErr = rt.Delegate.RoundTrip(req)

		needRetry, err := rt.CheckRetry(ctx, req, resp, roundTripErr)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to check if retry is needed, %d request(s) done", attempt+1), log.Error(err))
			return resp, roundTripErr
		}
		if !needRetry {
			return resp, roundTripErr
		}

		if rt.MaxRetryAttempts > 0 && attempt >= rt.MaxRetryAttempts {
			logger.Warn("max retry attempts exceeded",
				log.Int("max_retry_attempts", rt.MaxRetryAttempts), log.Int("requests_done", attempt+1))
			return resp, roundTripErr
		}
		waitTime, ok := rt.nextWaitTime(bf, resp)
		if !ok {
			return resp, roundTripErr
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn("context canceled while waiting for the next retry attempt",
				log.Error(ctx.Err()), log.Int("requests_done", attempt+1))
			return resp, roundTripErr
		case <-timer.C:
		}
	}
}

func (rt *RetryableRoundTripper) nextWaitTime(bf backoff.BackOff, resp *http.Response) (time.Duration, bool) {
	if resp != nil && !rt.IgnoreRetryAfter {
		if retryAfter, ok := parseRetryAfter(resp); ok {
			return retryAfter, true
		}
	}
	waitTime := bf.NextBackOff()
	return waitTime, waitTime != backoff.Stop
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	var logger log.FieldLogger
	if rt.LoggerProvider != nil {
		logger = rt.LoggerProvider(ctx)
	}
	if logger == nil {
		logger = middleware.GetLoggerFromContextOrDisabled(ctx)
	}
	return logger
}

// RetryableRoundTripperError is returned by RetryableRoundTripper when the request cannot be prepared for retries.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return fmt.Sprintf("retryable round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries temporary transport errors, 429 responses and 5xx responses.
// Server errors of non-idempotent requests are retried only if the request context
// carries the idempotent hint (see NewContextWithIdempotentHint).
func DefaultCheckRetry(
	ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error,
) (needRetry bool, err error) {
	if ctx.Err() != nil {
		return false, nil
	}
	if roundTripErr != nil {
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("both response and round trip error are nil")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode < http.StatusInternalServerError || resp.StatusCode == http.StatusNotImplemented {
		return false, nil
	}
	return isIdempotentMethod(req.Method) || GetIdempotentHintFromContext(ctx), nil
}

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// DefaultBackoffPolicy is a default backoff policy.
var DefaultBackoffPolicy = retry.PolicyFunc(func() backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = DefaultExponentialBackoffInitialInterval
	bf.Multiplier = DefaultExponentialBackoffMultiplier
	bf.Reset()
	return bf
})

// CheckErrorIsTemporary checks either error is temporary or not.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}
	var toErr interface{ Timeout() bool }
	return errors.As(err, &toErr) && toErr.Timeout()
}

func makeRequestBodyRewindable(req *http.Request) (func(*http.Request) error, error) {
	if seeker, ok := req.Body.(io.ReadSeeker); ok {
		offset, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek request body before doing first request: %w", err)
		}
		req.Body = io.NopCloser(seeker)
		return func(*http.Request) error {
			if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
				return fmt.Errorf("seek request body to offset %d: %w", offset, err)
			}
			return nil
		}, nil
	}

	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body before doing first request: %w", err)
	}
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(buf))
		return nil
	}, nil
}

func drainResponseBody(logger log.FieldLogger, resp *http.Response) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Error("failed to close previous response body between retry attempts", log.Error(err))
	}
}

func parseRetryAfter(resp *http.Response) (time.Duration, bool) {
	val := resp.Header.Get("Retry-After")
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(val); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	if d := time.Until(t); d > 0 {
		return d, true
	}
	return 0, true
}
