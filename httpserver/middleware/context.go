/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/leadforge/siteapi/log"
)

// ctxKey is typed by the value it carries, so lookups can't mix up value types.
type ctxKey[T any] struct{ name string }

var (
	requestIDKey         = ctxKey[string]{"request-id"}
	internalRequestIDKey = ctxKey[string]{"internal-request-id"}
	loggerKey            = ctxKey[log.FieldLogger]{"logger"}
	loggingParamsKey     = ctxKey[*LoggingParams]{"logging-params"}
	requestStartTimeKey  = ctxKey[time.Time]{"request-start-time"}
)

func (k ctxKey[T]) with(ctx context.Context, value T) context.Context {
	return context.WithValue(ctx, k, value)
}

func (k ctxKey[T]) from(ctx context.Context) T {
	value, _ := ctx.Value(k).(T)
	return value
}

// NewContextWithRequestID returns a context carrying the external request id (X-Request-ID).
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return requestIDKey.with(ctx, requestID)
}

// GetRequestIDFromContext returns the external request id or "".
func GetRequestIDFromContext(ctx context.Context) string {
	return requestIDKey.from(ctx)
}

// NewContextWithInternalRequestID returns a context carrying the internal request id, always generated by the server.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return internalRequestIDKey.with(ctx, internalRequestID)
}

// GetInternalRequestIDFromContext returns the internal request id or "".
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return internalRequestIDKey.from(ctx)
}

// NewContextWithLogger returns a context carrying the request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return loggerKey.with(ctx, logger)
}

// GetLoggerFromContext returns the request-scoped logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return loggerKey.from(ctx)
}

// GetLoggerFromContextOrDisabled is like GetLoggerFromContext but returns a disabled logger instead of nil.
func GetLoggerFromContextOrDisabled(ctx context.Context) log.FieldLogger {
	if logger := GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return log.NewDisabledLogger()
}

// NewContextWithLoggingParams returns a context carrying the logging params of the request.
func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return loggingParamsKey.with(ctx, loggingParams)
}

// GetLoggingParamsFromContext returns the logging params of the request or nil.
func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return loggingParamsKey.from(ctx)
}

// NewContextWithRequestStartTime returns a context carrying the time the server started handling the request.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return requestStartTimeKey.with(ctx, startTime)
}

// GetRequestStartTimeFromContext returns the request start time or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return requestStartTimeKey.from(ctx)
}
