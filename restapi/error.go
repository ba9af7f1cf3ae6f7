/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/leadforge/siteapi/log"
)

// Error messages.
// We are using "var" here because some services may want to use different error messages.
var (
	// GenericErrorMessage replaces the error message in responses when running in production.
	GenericErrorMessage = "An unexpected error occurred. Please try again later."

	ErrMessageInternal         = "Internal server error."
	ErrMessageNotFound         = "Not found."
	ErrMessageMethodNotAllowed = "Method not allowed."
	ErrMessageTooManyRequests  = "Too many requests."
)

// ErrorDetails carries the original error for debugging. It's never sent in production.
type ErrorDetails struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ErrorResponse is the standardized body of a failed request.
type ErrorResponse struct {
	StatusCode int `json:"-"`

	Success   bool          `json:"success"`
	Message   string        `json:"error"`
	Details   *ErrorDetails `json:"details,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

// ErrorParams describes a failure to be turned into ErrorResponse.
type ErrorParams struct {
	// Message is a human-readable description. ErrMessageInternal is used if empty.
	Message string

	// StatusCode is an HTTP status code. 500 is used if zero.
	StatusCode int

	// Err is the underlying error, if any.
	Err error

	// RequestID is echoed in the response body when not empty.
	RequestID string

	// IsProduction enables redaction of the message and omits details.
	IsProduction bool
}

// NewErrorResponse builds the standardized error response.
// The message and the underlying error are always logged, regardless of the redaction.
func NewErrorResponse(logger log.FieldLogger, params ErrorParams) *ErrorResponse {
	if params.StatusCode == 0 {
		params.StatusCode = http.StatusInternalServerError
	}
	if params.Message == "" {
		params.Message = ErrMessageInternal
	}

	logErrorResponse(logger, params)
	collectMetricsForErrorResponse(params.StatusCode)

	resp := &ErrorResponse{StatusCode: params.StatusCode, RequestID: params.RequestID}
	if params.IsProduction {
		resp.Message = GenericErrorMessage
		return resp
	}
	resp.Message = params.Message
	if params.Err != nil {
		resp.Details = &ErrorDetails{Message: params.Err.Error(), Stack: errorStack(params.Err)}
	}
	return resp
}

// Error implements the error interface, so ErrorResponse may be returned from functions as is.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Message)
}

func logErrorResponse(logger log.FieldLogger, params ErrorParams) {
	if logger == nil {
		return
	}
	fields := []log.Field{log.Int("status", params.StatusCode)}
	if params.Err != nil {
		fields = append(fields, log.Error(params.Err))
	}
	if params.RequestID != "" {
		fields = append(fields, log.String("request_id", params.RequestID))
	}
	if params.StatusCode >= http.StatusInternalServerError {
		logger.Error(params.Message, fields...)
		return
	}
	logger.Warn(params.Message, fields...)
}

// errorStack returns the "%+v" rendering of the error when it differs from the plain message
// (errors carrying a stack implement fmt.Formatter), otherwise the stack of the current goroutine.
func errorStack(err error) string {
	if _, ok := err.(fmt.Formatter); ok {
		if verbose := fmt.Sprintf("%+v", err); verbose != err.Error() {
			return verbose
		}
	}
	return string(debug.Stack())
}
