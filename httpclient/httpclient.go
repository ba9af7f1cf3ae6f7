/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides an http.Client for calls to downstream services.
// The client is a chain of round trippers that add logging, metrics, client side rate limiting,
// User-Agent and X-Request-ID headers, bearer authorization and retries on top of http.Transport.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/leadforge/siteapi/log"
)

// DefaultRequestType is used in logs and metrics when Opts.RequestType is empty.
const DefaultRequestType = "downstream"

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	UserAgent string

	// RequestType names the kind of outgoing requests (e.g. "lookup", "contact-webhook")
	// in logs and metrics.
	RequestType string

	// Delegate is the innermost RoundTripper, a clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	// LoggerProvider returns a context-specific logger, middleware.GetLoggerFromContext is used if nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MetricsCollector receives request durations when metrics are enabled.
	MetricsCollector MetricsCollector

	// AuthProvider, when set, makes the client send "Authorization: Bearer <token>".
	AuthProvider AuthProvider
}

// New creates an http.Client configured according to cfg.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must is a version of New that panics if an error occurs.
func Must(cfg *Config) *http.Client {
	return MustWithOpts(cfg, Opts{})
}

// NewWithOpts creates an http.Client configured according to cfg and opts.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) { //nolint:gocritic
	var err error

	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Log.Enabled {
		delegate = NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{
			RequestType:          opts.RequestType,
			LoggerProvider:       opts.LoggerProvider,
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
		})
	}

	if cfg.Metrics.Enabled && opts.MetricsCollector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.MetricsCollector,
		})
	}

	if cfg.RateLimits.Enabled {
		if delegate, err = NewRateLimitingRoundTripperWithOpts(
			delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts()); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.AuthProvider != nil {
		delegate = NewAuthBearerRoundTripper(delegate, opts.AuthProvider)
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripper(delegate)

	if cfg.Retries.Enabled && cfg.Retries.MaxAttempts > 0 {
		if delegate, err = NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{
			LoggerProvider:   opts.LoggerProvider,
			MaxRetryAttempts: cfg.Retries.MaxAttempts,
			BackoffPolicy:    cfg.Retries.GetPolicy(),
		}); err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	timeout := time.Duration(cfg.Timeout)
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Transport: delegate, Timeout: timeout}, nil
}

// MustWithOpts is a version of NewWithOpts that panics if an error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client { //nolint:gocritic
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
