/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strings"
)

// UserAgentRoundTripper stamps the service's product token into the User-Agent header of outgoing requests.
// A caller-provided User-Agent is kept and the token is appended to it, so upstreams and webhook
// receivers always see which service made the call.
type UserAgentRoundTripper struct {
	Delegate  http.RoundTripper
	UserAgent string
}

// NewUserAgentRoundTripper creates a new UserAgentRoundTripper.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{Delegate: delegate, UserAgent: userAgent}
}

// RoundTrip implements http.RoundTripper.
func (rt *UserAgentRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	current := r.Header.Get("User-Agent")
	if strings.Contains(current, rt.UserAgent) {
		return rt.Delegate.RoundTrip(r)
	}
	userAgent := rt.UserAgent
	if current != "" {
		userAgent = current + " " + rt.UserAgent
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", userAgent)
	return rt.Delegate.RoundTrip(r)
}
