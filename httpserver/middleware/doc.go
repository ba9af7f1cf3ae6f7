/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package middleware contains HTTP middlewares used by the site API server:
// request ids, logging, panic recovery, Prometheus metrics, CORS, rate limiting and request body limiting.
// Every failure produced by a middleware is answered with the standardized error response from the restapi package.
package middleware
