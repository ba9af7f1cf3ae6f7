/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/leadforge/siteapi/httpserver"
	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
)

// ErrNotConfigured is returned when a feature needs configuration that is missing (e.g. upstream URL).
var ErrNotConfigured = errors.New("not configured")

// ErrUpstream marks failures of downstream services (transport errors, timeouts, unexpected statuses).
var ErrUpstream = errors.New("upstream request failed")

// Error messages.
const (
	ErrMessageServiceUnavailable = "Service unavailable."
	ErrMessageUpstreamFailed     = "Upstream service failed."
	ErrMessageUpstreamTimeout    = "Upstream service timed out."
	ErrMessageUnauthorized       = "Unauthorized."
)

// isTimeout reports whether err is a deadline or a client timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// respondError maps err to the standardized error response.
// A request abandoned by its client gets 499 without a body and is not logged as an error.
func (h *Handler) respondError(rw http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContextOrDisabled(ctx)
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		logger.Debug("request canceled by client", log.Error(err))
		rw.WriteHeader(httpserver.StatusClientClosedRequest)
		return
	}
	params := restapi.ErrorParams{
		Err:          err,
		RequestID:    middleware.GetRequestIDFromContext(ctx),
		IsProduction: h.isProduction,
	}

	var reqErr *restapi.MalformedRequestError
	var clientErr *restapi.ClientError
	switch {
	case errors.As(err, &reqErr):
		params.StatusCode, params.Message, params.Err = reqErr.HTTPStatusCode, reqErr.Message, nil
	case errors.Is(err, ErrNotConfigured):
		params.StatusCode, params.Message = http.StatusServiceUnavailable, ErrMessageServiceUnavailable
	case errors.Is(err, ErrUpstream) && isTimeout(err):
		params.StatusCode, params.Message = http.StatusGatewayTimeout, ErrMessageUpstreamTimeout
	case errors.Is(err, ErrUpstream) && errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound:
		params.StatusCode, params.Message = http.StatusNotFound, restapi.ErrMessageNotFound
	case errors.Is(err, ErrUpstream):
		params.StatusCode, params.Message = http.StatusBadGateway, ErrMessageUpstreamFailed
	default:
		params.StatusCode, params.Message = http.StatusInternalServerError, restapi.ErrMessageInternal
	}
	restapi.RespondError(rw, params, logger)
}
