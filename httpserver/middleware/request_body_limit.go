/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/leadforge/siteapi/restapi"
)

type requestBodyLimitHandler struct {
	next         http.Handler
	maxSizeBytes int64
	isProduction bool
}

// RequestBodyLimit is a middleware that sets the maximum allowed size for a request body.
// The body limit is determined based on both Content-Length request header and actual content read
// (restapi.DecodeRequestJSON reports the latter as 413).
func RequestBodyLimit(maxSizeBytes uint64, isProduction bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestBodyLimitHandler{next: next, maxSizeBytes: int64(maxSizeBytes), isProduction: isProduction} //nolint:gosec
	}
}

func (h *requestBodyLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxSizeBytes {
		reqErr := restapi.NewTooLargeMalformedRequestError(h.maxSizeBytes)
		restapi.RespondMalformedRequestOrInternalError(
			rw, reqErr, GetRequestIDFromContext(r.Context()), h.isProduction, GetLoggerFromContext(r.Context()))
		return
	}
	if r.Body != nil {
		r.Body = http.MaxBytesReader(rw, r.Body, h.maxSizeBytes)
	}
	h.next.ServeHTTP(rw, r)
}
