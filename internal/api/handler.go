/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package api contains HTTP handlers of the site API: upstream lookups memoized in the response cache,
// the contact form forwarded to a webhook, and administration of the cache.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadforge/siteapi/httpclient"
	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/respcache"
	"github.com/leadforge/siteapi/restapi"
)

// Cache is the response cache shared by the handlers.
// Upstream responses are stored as raw JSON documents.
type Cache = respcache.Cache[string, json.RawMessage]

// NewCache creates a Cache configured by cfg. The size of an entry is the length of its JSON document.
func NewCache(cfg *CacheConfig, metricsCollector respcache.MetricsCollector) (*Cache, error) {
	return respcache.NewWithOpts[string, json.RawMessage](cfg.MaxEntries, metricsCollector,
		respcache.Options[string, json.RawMessage]{
			DefaultTTL: time.Duration(cfg.DefaultTTL),
			SizeCalculation: func(key string, value json.RawMessage) int64 {
				return int64(len(value))
			},
		})
}

// HandlerOpts contains dependencies of Handler.
type HandlerOpts struct {
	// UpstreamClient is used for lookups, its timeout bounds every upstream call.
	UpstreamClient *http.Client

	// WebhookClient is used for delivering contact form submissions.
	WebhookClient *http.Client

	// IsProduction switches error responses to the redacted form.
	// It also closes the cache administration endpoints when no admin token is configured.
	IsProduction bool

	// TrustedProxies identify the client behind a reverse proxy for the contact form rate limit.
	TrustedProxies middleware.TrustedProxies

	// DeliveryRetryInterval is the initial delay between webhook delivery attempts,
	// DefaultDeliveryRetryInterval is used if zero.
	DeliveryRetryInterval time.Duration
}

// DefaultDeliveryRetryInterval is the default initial delay between webhook delivery attempts.
const DefaultDeliveryRetryInterval = 500 * time.Millisecond

// Handler serves the site API.
type Handler struct {
	cfg            *Config
	cache          *Cache
	upstreamClient *http.Client
	webhookClient  *http.Client
	isProduction   bool
	trustedProxies middleware.TrustedProxies
	retryInterval  time.Duration
	now            func() time.Time
}

// NewHandler creates a new Handler. The cache is owned by the caller.
func NewHandler(cfg *Config, cache *Cache, opts HandlerOpts) *Handler {
	if opts.UpstreamClient == nil {
		opts.UpstreamClient = &http.Client{Timeout: httpclient.DefaultTimeout}
	}
	if opts.WebhookClient == nil {
		opts.WebhookClient = &http.Client{Timeout: httpclient.DefaultTimeout}
	}
	if opts.DeliveryRetryInterval <= 0 {
		opts.DeliveryRetryInterval = DefaultDeliveryRetryInterval
	}
	return &Handler{
		cfg:            cfg,
		cache:          cache,
		upstreamClient: opts.UpstreamClient,
		webhookClient:  opts.WebhookClient,
		isProduction:   opts.IsProduction,
		trustedProxies: opts.TrustedProxies,
		retryInterval:  opts.DeliveryRetryInterval,
		now:            time.Now,
	}
}

// Routes returns a function that registers the API routes in a chi router (mounted at /api/v1).
func (h *Handler) Routes() (func(r chi.Router), error) {
	rateLimitOpts := h.cfg.Contact.RateLimit.RateLimitOpts(h.isProduction)
	rateLimitOpts.TrustedProxies = h.trustedProxies
	contactRateLimit, err := middleware.RateLimitWithOpts(h.cfg.Contact.RateLimit.Rate, rateLimitOpts)
	if err != nil {
		return nil, fmt.Errorf("create rate limiting middleware for contact form: %w", err)
	}

	return func(r chi.Router) {
		r.Get("/lookup/{resource}", h.Lookup)
		r.With(contactRateLimit).Post("/contact", h.Contact)
		r.Route("/cache", func(r chi.Router) {
			r.Use(h.requireAdminToken)
			r.Get("/stats", h.CacheStats)
			r.Delete("/", h.ClearCache)
			r.Delete("/{key}", h.DeleteCacheEntry)
		})
	}, nil
}

// requireAdminToken checks the bearer token. Without a configured token the endpoints
// are open in development and unavailable in production.
func (h *Handler) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if h.cfg.Cache.AdminToken == "" {
			if h.isProduction {
				h.respondError(rw, r, fmt.Errorf("cache administration: admin token: %w", ErrNotConfigured))
				return
			}
			next.ServeHTTP(rw, r)
			return
		}
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.Cache.AdminToken)) != 1 {
			restapi.RespondError(rw, restapi.ErrorParams{
				Message:      ErrMessageUnauthorized,
				StatusCode:   http.StatusUnauthorized,
				RequestID:    middleware.GetRequestIDFromContext(r.Context()),
				IsProduction: h.isProduction,
			}, middleware.GetLoggerFromContextOrDisabled(r.Context()))
			return
		}
		next.ServeHTTP(rw, r)
	})
}
