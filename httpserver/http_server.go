/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/service"
)

// systemEndpoints is a list of endpoints which are not involved in metrics collecting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// APIVersion is a type alias for API version.
type APIVersion = int

// APIRoute is a type alias for single API route.
type APIRoute = func(router chi.Router)

// HTTPRequestMetricsOpts represents options for the request metrics middleware used in HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
	GetRoutePattern middleware.RoutePatternGetterFunc
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// APIRoutes maps API versions to their route configuration functions, mounted at "/api/v{N}".
	APIRoutes map[APIVersion]APIRoute

	// RootMiddlewares are applied after the default ones.
	RootMiddlewares []func(http.Handler) http.Handler

	// IsProduction switches the standardized error responses to the redacted form.
	IsProduction bool

	// HealthCheck serves "/healthz", an empty component list is reported if nil.
	HealthCheck HealthCheck

	// MetricsHandler serves "/metrics", promhttp.Handler() is used if nil.
	MetricsHandler http.Handler

	HTTPRequestMetrics HTTPRequestMetricsOpts

	// Listener is used instead of listening on Config.Address when set.
	Listener net.Listener
}

func (opts *Opts) routerOpts() RouterOpts {
	return RouterOpts{
		APIRoutes:       opts.APIRoutes,
		RootMiddlewares: opts.RootMiddlewares,
		IsProduction:    opts.IsProduction,
		HealthCheck:     opts.HealthCheck,
		MetricsHandler:  opts.MetricsHandler,
	}
}

// HTTPServer is the application HTTP server presented as a service unit.
// Requests are routed by chi, HTTPRouter may be used to serve requests without listening (e.g. in tests).
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	ShutdownTimeout time.Duration

	logger   log.FieldLogger
	listener net.Listener
	port     atomic.Int32
	started  atomic.Bool
	done     chan struct{}
	metrics  *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates an HTTPServer. Every request passes the default middlewares (request id, logging,
// panic recovery, metrics, CORS and the request body limit) before reaching the API routes or the
// "/healthz" and "/metrics" system endpoints.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam is ok here
	metrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})

	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, &opts, metrics)
	configureRouter(router, logger, opts.routerOpts())

	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		},
		HTTPRouter:      router,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		logger:          logger.With(log.String("address", cfg.Address)),
		listener:        opts.Listener,
		done:            make(chan struct{}),
		metrics:         metrics,
	}
}

// Start implements service.Unit. It blocks until the server is stopped.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.done)

	if s.listener == nil {
		listener, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			s.logger.Error("failed to listen", log.Error(err))
			fatalError <- fmt.Errorf("listen %s: %w", s.HTTPServer.Addr, err)
			return
		}
		s.listener = listener
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port))
	}

	s.logger.Info("application HTTP server started",
		log.Int("port", s.GetPort()),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
	)

	err := s.HTTPServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("application HTTP server closed")
		return
	}
	s.logger.Error("application HTTP server failed", log.Error(err))
	fatalError <- err
}

// Stop implements service.Unit. A graceful stop waits for in-flight requests up to ShutdownTimeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if err := s.stop(gracefully); err != nil {
		s.logger.Error("failed to stop application HTTP server", log.Error(err), log.Bool("graceful", gracefully))
		return err
	}
	if s.started.Load() {
		<-s.done
	}
	return nil
}

func (s *HTTPServer) stop(gracefully bool) error {
	if !gracefully {
		return s.HTTPServer.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down application HTTP server", log.Duration("timeout", s.ShutdownTimeout))
	return s.HTTPServer.Shutdown(ctx)
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) MustRegisterMetrics() {
	s.metrics.MustRegister()
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) UnregisterMetrics() {
	s.metrics.Unregister()
}

// GetPort returns the TCP port the server listens on, 0 until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
