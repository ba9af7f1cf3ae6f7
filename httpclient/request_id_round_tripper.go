/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"

	"github.com/leadforge/siteapi/httpserver/middleware"
)

// RequestIDHeader is the header carrying the id of the incoming request to the downstream service.
const RequestIDHeader = "X-Request-ID"

// RequestIDRoundTripper propagates the request id of the incoming request (if any) to outgoing requests.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) *RequestIDRoundTripper {
	return &RequestIDRoundTripper{Delegate: delegate}
}

// RoundTrip adds X-Request-ID header to the request unless it's already set.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	if requestID == "" || r.Header.Get(RequestIDHeader) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	r = r.Clone(r.Context()) // Per RoundTripper contract.
	r.Header.Set(RequestIDHeader, requestID)
	return rt.Delegate.RoundTrip(r)
}
