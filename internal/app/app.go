/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package app assembles the site API process from its configuration:
// the HTTP server with the API routes, downstream clients, the response cache and its cleanup worker.
package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/leadforge/siteapi/httpclient"
	"github.com/leadforge/siteapi/httpserver"
	"github.com/leadforge/siteapi/internal/api"
	"github.com/leadforge/siteapi/internal/version"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/respcache"
	"github.com/leadforge/siteapi/restapi"
	"github.com/leadforge/siteapi/service"
)

// Request types of the downstream clients in logs and metrics.
const (
	RequestTypeLookup  = "lookup"
	RequestTypeWebhook = "contact-webhook"
)

// Opts contains optional parameters for New.
type Opts struct {
	// Listener is used by the HTTP server instead of listening on the configured address.
	Listener net.Listener
}

// App is the assembled site API process.
type App struct {
	HTTPServer *httpserver.HTTPServer
	Cache      *api.Cache

	logger log.FieldLogger
	unit   *service.CompositeUnit
}

// New builds the application. Metrics are registered only when the application is run.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*App, error) {
	isProduction := cfg.App.IsProduction()
	namespace := cfg.App.MetricsNamespace
	constLabels := version.AddPrometheusLabel(nil)

	cacheMetrics := respcache.NewPrometheusMetricsWithOpts(respcache.PrometheusMetricsOpts{
		Namespace: namespace, ConstLabels: constLabels,
	})
	cache, err := api.NewCache(&cfg.API.Cache, cacheMetrics)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	if isProduction && cfg.API.Cache.AdminToken == "" {
		logger.Warn("cache administration endpoints are disabled, api.cache.adminToken is not set")
	}

	clientMetrics := httpclient.NewPrometheusMetricsCollectorWithOpts(httpclient.PrometheusMetricsCollectorOpts{
		Namespace: namespace, ConstLabels: constLabels,
	})
	upstreamClient, err := httpclient.NewWithOpts(cfg.UpstreamClient, httpclient.Opts{
		UserAgent:        version.UserAgent(),
		RequestType:      RequestTypeLookup,
		MetricsCollector: clientMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create upstream HTTP client: %w", err)
	}
	webhookClientOpts := httpclient.Opts{
		UserAgent:        version.UserAgent(),
		RequestType:      RequestTypeWebhook,
		MetricsCollector: clientMetrics,
	}
	if cfg.API.Contact.WebhookToken != "" {
		webhookClientOpts.AuthProvider = httpclient.StaticTokenProvider(cfg.API.Contact.WebhookToken)
	}
	webhookClient, err := httpclient.NewWithOpts(cfg.WebhookClient, webhookClientOpts)
	if err != nil {
		return nil, fmt.Errorf("create webhook HTTP client: %w", err)
	}

	handler := api.NewHandler(cfg.API, cache, api.HandlerOpts{
		UpstreamClient: upstreamClient,
		WebhookClient:  webhookClient,
		IsProduction:   isProduction,
		TrustedProxies: cfg.Server.TrustedProxies,
	})
	apiRoutes, err := handler.Routes()
	if err != nil {
		return nil, fmt.Errorf("create API routes: %w", err)
	}

	httpServer := httpserver.New(cfg.Server, logger, httpserver.Opts{
		APIRoutes:    map[httpserver.APIVersion]httpserver.APIRoute{1: apiRoutes},
		IsProduction: isProduction,
		HealthCheck:  healthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
			Namespace:   namespace,
			ConstLabels: constLabels,
		},
		Listener: opts.Listener,
	})

	cleanupWorker := service.NewWorkerUnitWithOpts(
		service.NewPeriodicWorker(newCacheCleanupWorker(cache, logger), time.Duration(cfg.API.Cache.CleanupInterval), logger),
		service.WorkerUnitOpts{
			MetricsRegisterer: &metricsRegisterer{
				namespace:     namespace,
				cacheMetrics:  cacheMetrics,
				clientMetrics: clientMetrics,
			},
			GracefulStopTimeout: time.Duration(cfg.Server.Timeouts.Shutdown),
		},
	)

	return &App{
		HTTPServer: httpServer,
		Cache:      cache,
		logger:     logger,
		unit:       service.NewCompositeUnit(httpServer, cleanupWorker),
	}, nil
}

// Unit returns the service unit that runs the whole application.
func (a *App) Unit() service.Unit {
	return a.unit
}

// Run runs the application until a shutdown signal is received or ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting site API", log.String("version", version.Get()))
	return service.New(a.logger, a.unit).StartContext(ctx)
}

func newCacheCleanupWorker(cache *api.Cache, logger log.FieldLogger) service.Worker {
	return service.WorkerFunc(func(ctx context.Context) error {
		if removed := cache.Cleanup(); removed > 0 {
			logger.Debug("expired response cache entries removed", log.Int("removed", removed))
		}
		return nil
	})
}

// healthCheck doesn't probe downstream services, lookups and the contact form degrade to 5xx on their own.
func healthCheck(context.Context) (httpserver.HealthCheckResult, error) {
	return httpserver.HealthCheckResult{"cache": httpserver.HealthCheckStatusOK}, nil
}

// metricsRegisterer registers the metrics that are not owned by a particular unit.
type metricsRegisterer struct {
	namespace     string
	cacheMetrics  *respcache.PrometheusMetrics
	clientMetrics *httpclient.PrometheusMetricsCollector
}

func (mr *metricsRegisterer) MustRegisterMetrics() {
	mr.cacheMetrics.MustRegister()
	mr.clientMetrics.MustRegister()
	restapi.MustInitAndRegisterMetrics(mr.namespace)
}

func (mr *metricsRegisterer) UnregisterMetrics() {
	mr.cacheMetrics.Unregister()
	mr.clientMetrics.Unregister()
	restapi.UnregisterMetrics()
}
