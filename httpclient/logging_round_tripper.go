/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	RequestType string

	// LoggerProvider returns a context-specific logger, middleware.GetLoggerFromContext is used if nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging, LoggingModeAll if empty.
	Mode LoggingMode

	// SlowRequestThreshold makes successful requests faster than it logged at debug level.
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper implements http.RoundTripper for logging outgoing requests.
// The duration is also added to the logging params of the incoming request (if any),
// so it shows up in the "response completed" entry as external_request_<type>_ms time slot.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	Opts     LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, requestType string) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{RequestType: requestType})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, opts LoggingRoundTripperOpts) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return middleware.GetLoggerFromContext(ctx)
}

// RoundTrip executes a single HTTP transaction and logs its outcome.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if loggingParams := middleware.GetLoggingParamsFromContext(ctx); loggingParams != nil {
		loggingParams.AddTimeSlotDurationInMs("external_request_"+rt.Opts.RequestType+"_ms", elapsed)
	}

	logger := rt.getLogger(ctx)
	if logger == nil {
		return resp, err
	}
	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if rt.Opts.Mode == LoggingModeFailed && !failed {
		return resp, err
	}

	fields := []log.Field{
		log.String("client_type", rt.Opts.RequestType),
		log.String("method", r.Method),
		log.String("url", r.URL.Redacted()),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	}
	switch {
	case err != nil:
		logger.Error("client HTTP request failed", append(fields, log.Error(err))...)
	case resp.StatusCode >= http.StatusInternalServerError:
		logger.Warn("client HTTP request done", append(fields, log.Int("status", resp.StatusCode))...)
	case elapsed >= rt.Opts.SlowRequestThreshold:
		logger.Info("client HTTP request done", append(fields, log.Int("status", resp.StatusCode))...)
	default:
		logger.Debug("client HTTP request done", append(fields, log.Int("status", resp.StatusCode))...)
	}
	return resp, err
}
