/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
)

// StatusClientClosedRequest is the non-standard status (introduced by Nginx) used when the client
// went away before the response was ready.
const StatusClientClosedRequest = 499

// HealthCheckStatus is the status of a single component.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps component names (e.g. "cache") to their statuses.
type HealthCheckResult = map[string]HealthCheckStatus

// HealthCheck reports the statuses of the service components.
type HealthCheck func(ctx context.Context) (HealthCheckResult, error)

// NewHealthCheckHandler creates the "/healthz" handler. It answers 200 with
// {"components":{"<name>":true|false}} when every component is OK and 503 otherwise.
// A nil check reports no components.
func NewHealthCheckHandler(check HealthCheck) http.Handler {
	if check == nil {
		check = func(ctx context.Context) (HealthCheckResult, error) { return HealthCheckResult{}, ctx.Err() }
	}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		logger := middleware.GetLoggerFromContextOrDisabled(r.Context())

		result, err := check(r.Context())
		if err == nil {
			err = r.Context().Err()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				rw.WriteHeader(StatusClientClosedRequest)
				return
			}
			logger.Error("error while checking health", log.Error(err))
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		components := make(map[string]bool, len(result))
		for name, componentStatus := range result {
			components[name] = componentStatus == HealthCheckStatusOK
			if !components[name] {
				status = http.StatusServiceUnavailable
			}
		}
		restapi.RespondCodeAndJSON(rw, status, struct {
			Components map[string]bool `json:"components"`
		}{components}, logger)
	})
}
