/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	headerOrigin                    = "Origin"
	headerAccessControlAllowCreds   = "Access-Control-Allow-Credentials"
	headerAccessControlAllowOrigin  = "Access-Control-Allow-Origin"
	headerAccessControlAllowMethods = "Access-Control-Allow-Methods"
	headerAccessControlAllowHeaders = "Access-Control-Allow-Headers"
)

// Default CORS policy values.
var (
	DefaultCORSMethods = []string{http.MethodGet, http.MethodOptions}
	DefaultCORSHeaders = "Content-Type, Authorization"
	DefaultCORSOrigin  = "*"
)

// CORSOpts represents a cross-origin policy. Zero-value fields take the defaults.
type CORSOpts struct {
	// Methods is an ordered list of allowed HTTP methods. DefaultCORSMethods is used if empty.
	Methods []string

	// Headers is a value for Access-Control-Allow-Headers. DefaultCORSHeaders is used if empty.
	Headers string

	// Credentials is a value for Access-Control-Allow-Credentials. True is used if nil.
	Credentials *bool

	// Origin is a value for Access-Control-Allow-Origin. DefaultCORSOrigin is used if empty.
	Origin string
}

type corsHandler struct {
	next http.Handler

	allowCredentials string
	allowOrigin      string
	allowMethods     string
	allowHeaders     string
}

// CORS is a middleware that puts the cross-origin headers into every response
// and answers preflight (OPTIONS) requests with 200 and an empty body without calling the next handler.
func CORS(opts CORSOpts) func(next http.Handler) http.Handler {
	methods := opts.Methods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	upperMethods := make([]string, 0, len(methods))
	for _, m := range methods {
		upperMethods = append(upperMethods, strings.ToUpper(strings.TrimSpace(m)))
	}
	headers := opts.Headers
	if headers == "" {
		headers = DefaultCORSHeaders
	}
	origin := opts.Origin
	if origin == "" {
		origin = DefaultCORSOrigin
	}
	credentials := true
	if opts.Credentials != nil {
		credentials = *opts.Credentials
	}

	return func(next http.Handler) http.Handler {
		return &corsHandler{
			next:             next,
			allowCredentials: strconv.FormatBool(credentials),
			allowOrigin:      origin,
			allowMethods:     strings.Join(upperMethods, ","),
			allowHeaders:     headers,
		}
	}
}

// WrapCORS wraps the handler with the CORS middleware.
func WrapCORS(handler http.Handler, opts CORSOpts) http.Handler {
	return CORS(opts)(handler)
}

func (h *corsHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	respHeader := rw.Header()
	respHeader.Set(headerAccessControlAllowCreds, h.allowCredentials)
	respHeader.Set(headerAccessControlAllowOrigin, h.allowOrigin)
	respHeader.Set(headerAccessControlAllowMethods, h.allowMethods)
	respHeader.Set(headerAccessControlAllowHeaders, h.allowHeaders)

	if r.Method == http.MethodOptions {
		rw.WriteHeader(http.StatusOK)
		return
	}

	h.next.ServeHTTP(rw, r)
}
