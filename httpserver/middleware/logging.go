/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/leadforge/siteapi/log"
)

const (
	// LoggingSecretQueryPlaceholder replaces values of secret query parameters in logged URIs.
	LoggingSecretQueryPlaceholder = "_HIDDEN_"

	// DefaultSlowRequestThreshold is used when LoggingOpts.SlowRequestThreshold is zero.
	DefaultSlowRequestThreshold = time.Second

	userAgentLogFieldKey = "user_agent"
)

// LoggingOpts represents options for the LoggingWithOpts middleware.
type LoggingOpts struct {
	// RequestStart enables an additional "request started" entry.
	RequestStart bool

	// RequestHeaders maps request header names to the log keys they are logged under.
	RequestHeaders map[string]string

	// ExcludedEndpoints are exact paths which are logged only when the response status is 4xx or 5xx.
	ExcludedEndpoints []string

	// SecretQueryParams are query parameters whose values are replaced with LoggingSecretQueryPlaceholder.
	SecretQueryParams []string

	// AddRequestInfoToLogger makes the logger in the request context carry the request fields too.
	AddRequestInfoToLogger bool

	// SlowRequestThreshold is the duration from which the completed request is logged at warn level.
	SlowRequestThreshold time.Duration

	// TrustedProxies are used to resolve the logged client_ip.
	TrustedProxies TrustedProxies
}

// Logging is a middleware that logs completed HTTP requests and puts a logger
// with the request ids into the request context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a version of Logging with options.
// Handlers may add fields to the completion entry through GetLoggingParamsFromContext.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, path := range opts.ExcludedEndpoints {
		excluded[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			startTime := GetRequestStartTimeFromContext(ctx)
			if startTime.IsZero() {
				startTime = time.Now()
				ctx = NewContextWithRequestStartTime(ctx, startTime)
			}

			ctxLogger := logger.With(
				log.String("request_id", GetRequestIDFromContext(ctx)),
				log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
			)
			reqLogger := ctxLogger.With(requestLogFields(r, &opts)...)
			if opts.AddRequestInfoToLogger {
				ctxLogger = reqLogger
			}

			_, quiet := excluded[r.URL.Path]
			if opts.RequestStart && !quiet {
				reqLogger.Info("request started")
			}

			params := &LoggingParams{}
			ctx = NewContextWithLoggingParams(NewContextWithLogger(ctx, ctxLogger), params)
			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(ctx))

			status := wrw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if quiet && status < http.StatusBadRequest {
				return
			}

			elapsed := time.Since(startTime)
			fields := append([]log.Field{
				log.Int64("duration_ms", elapsed.Milliseconds()),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
			}, params.fieldsToLog()...)
			msg := fmt.Sprintf("response completed in %.3fs", elapsed.Seconds())
			if elapsed >= opts.SlowRequestThreshold {
				reqLogger.Warn(msg, append(fields, log.Bool("slow", true))...)
				return
			}
			reqLogger.Info(msg, fields...)
		})
	}
}

func requestLogFields(r *http.Request, opts *LoggingOpts) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", loggableURI(r, opts.SecretQueryParams)),
		log.String("remote_addr", r.RemoteAddr),
		log.String("client_ip", opts.TrustedProxies.ClientIP(r)),
		log.Int64("content_length", r.ContentLength),
		log.String(userAgentLogFieldKey, r.UserAgent()),
	}
	if originAddr := GetOriginAddr(r); originAddr != "" {
		fields = append(fields, log.String("origin_addr", originAddr))
	}
	if origin := r.Header.Get(headerOrigin); origin != "" {
		fields = append(fields, log.String("origin", origin))
	}
	for headerName, logKey := range opts.RequestHeaders {
		fields = append(fields, log.String(logKey, r.Header.Get(headerName)))
	}
	return fields
}

func loggableURI(r *http.Request, secretParams []string) string {
	if len(secretParams) == 0 || r.URL.RawQuery == "" {
		return r.RequestURI
	}
	query := r.URL.Query()
	for _, name := range secretParams {
		values := query[name]
		for i := range values {
			if values[i] != "" {
				values[i] = LoggingSecretQueryPlaceholder
			}
		}
	}
	return r.URL.Path + "?" + query.Encode()
}
