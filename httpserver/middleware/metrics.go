/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultHTTPRequestDurationBuckets covers fast cache hits as well as slow upstream lookups and webhook deliveries.
var DefaultHTTPRequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var httpRequestMetricsLabels = []string{"method", "route_pattern", "status_code"}

// HTTPRequestMetricsCollectorOpts represents options for HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	// Namespace is prepended to the metric names.
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector collects metrics of the served HTTP requests.
type HTTPRequestMetricsCollector struct {
	// Durations is labeled by method, chi route pattern and status code.
	Durations *prometheus.HistogramVec
	InFlight  prometheus.Gauge
}

// NewHTTPRequestMetricsCollector creates a collector with default options.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts creates a collector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "A histogram of the HTTP request durations.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, httpRequestMetricsLabels),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Current number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister registers the metrics in the default Prometheus registerer and panics on error.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations, c.InFlight)
}

// Unregister removes the metrics from the default Prometheus registerer.
func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c.Durations)
	prometheus.Unregister(c.InFlight)
}

func (c *HTTPRequestMetricsCollector) observe(method, routePattern string, status int, elapsed time.Duration) {
	c.Durations.WithLabelValues(method, routePattern, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// HTTPRequestMetricsOpts represents options for the HTTPRequestMetricsWithOpts middleware.
type HTTPRequestMetricsOpts struct {
	// ExcludedEndpoints are exact paths (e.g. "/metrics") which are not measured.
	ExcludedEndpoints []string
}

// HTTPRequestMetrics is a middleware that measures served HTTP requests.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is a version of HTTPRequestMetrics with options.
// The route pattern is resolved after the request is routed, so it's a pattern like
// "/api/v1/lookup/{resource}" rather than a raw path.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, path := range opts.ExcludedEndpoints {
		excluded[path] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if _, ok := excluded[r.URL.Path]; ok {
				next.ServeHTTP(rw, r)
				return
			}

			startTime := GetRequestStartTimeFromContext(r.Context())
			if startTime.IsZero() {
				startTime = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
			}

			collector.InFlight.Inc()
			defer collector.InFlight.Dec()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				if p := recover(); p != nil {
					if p != http.ErrAbortHandler {
						collector.observe(r.Method, getRoutePattern(r), http.StatusInternalServerError, time.Since(startTime))
					}
					panic(p)
				}
				status := wrw.Status()
				if status == 0 {
					status = http.StatusOK
				}
				collector.observe(r.Method, getRoutePattern(r), status, time.Since(startTime))
			}()

			next.ServeHTTP(wrw, r)
		})
	}
}
