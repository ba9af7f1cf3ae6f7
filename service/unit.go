/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the process: the HTTP server and background workers are presented as units
// that are started together and stopped together on a fatal error, OS signal or context cancellation.
package service

// Unit is a startable and stoppable part of the service.
type Unit interface {
	// Start may block for the whole lifetime of the unit or return right after initialization.
	// A fatal error is written to fatalErr at most once and only before Start returns.
	Start(fatalErr chan<- error)

	// Stop may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
