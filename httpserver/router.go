/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	APIRoutes       map[APIVersion]APIRoute
	RootMiddlewares []func(http.Handler) http.Handler
	IsProduction    bool
	HealthCheck     HealthCheck
	MetricsHandler  http.Handler
}

// NewRouter creates a new chi.Router with system endpoints, API routes and
// standardized 404/405 responses, but without the default middlewares.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) { //nolint:gocritic
	router.Use(opts.RootMiddlewares...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))

	for ver, r := range opts.APIRoutes {
		router.Route(fmt.Sprintf("/api/v%d", ver), r)
	}

	respondRoutingError := func(rw http.ResponseWriter, r *http.Request, status int, msg string) {
		reqLogger := middleware.GetLoggerFromContext(r.Context())
		if reqLogger == nil {
			reqLogger = logger
		}
		restapi.RespondError(rw, restapi.ErrorParams{
			Message:      msg,
			StatusCode:   status,
			RequestID:    middleware.GetRequestIDFromContext(r.Context()),
			IsProduction: opts.IsProduction,
		}, reqLogger)
	}
	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		respondRoutingError(rw, r, http.StatusNotFound, restapi.ErrMessageNotFound)
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		respondRoutingError(rw, r, http.StatusMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
	})
}

func applyDefaultMiddlewaresToRouter(
	router chi.Router, cfg *Config, logger log.FieldLogger, opts *Opts, metrics *middleware.HTTPRequestMetricsCollector,
) {
	router.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			handler.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})
	router.Use(middleware.RequestID())
	router.Use(middleware.LoggingWithOpts(logger, cfg.Log.loggingOpts(cfg.TrustedProxies)))
	router.Use(middleware.Recovery(opts.IsProduction))

	getRoutePattern := GetChiRoutePattern
	if opts.HTTPRequestMetrics.GetRoutePattern != nil {
		getRoutePattern = opts.HTTPRequestMetrics.GetRoutePattern
	}
	router.Use(middleware.HTTPRequestMetricsWithOpts(metrics, getRoutePattern,
		middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: systemEndpoints}))

	router.Use(middleware.CORS(cfg.CORS.CORSOpts()))

	if cfg.Limits.MaxBodySize > 0 {
		router.Use(middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySize), opts.IsProduction))
	}
}

// GetChiRoutePattern extracts chi route pattern from request.
func GetChiRoutePattern(r *http.Request) string {
	// modified code from https://github.com/go-chi/chi/issues/270#issuecomment-479184559
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}

	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}
