/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives the outcome of every outgoing request.
type MetricsCollector interface {
	// RequestDuration is called once per attempt. Status is "0" when no response was received.
	RequestDuration(requestType, host, method, status string, startTime time.Time)
}

// DefaultDurationBuckets fit the default 5s client timeout.
var DefaultDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// PrometheusMetricsCollectorOpts represents options for NewPrometheusMetricsCollectorWithOpts.
type PrometheusMetricsCollectorOpts struct {
	Namespace   string
	ConstLabels prometheus.Labels
}

// PrometheusMetricsCollector implements MetricsCollector with a Prometheus histogram
// labeled by request type, host, method and status.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a PrometheusMetricsCollector with the given namespace.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return NewPrometheusMetricsCollectorWithOpts(PrometheusMetricsCollectorOpts{Namespace: namespace})
}

// NewPrometheusMetricsCollectorWithOpts creates a PrometheusMetricsCollector.
func NewPrometheusMetricsCollectorWithOpts(opts PrometheusMetricsCollectorOpts) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_client_request_duration_seconds",
			Help:        "A histogram of the downstream HTTP request durations.",
			Buckets:     DefaultDurationBuckets,
			ConstLabels: opts.ConstLabels,
		}, []string{"type", "host", "method", "status"}),
	}
}

// MustRegister registers the histogram in the default Prometheus registerer.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations)
}

// Unregister removes the histogram from the default Prometheus registerer.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
}

// RequestDuration implements MetricsCollector.
func (p *PrometheusMetricsCollector) RequestDuration(requestType, host, method, status string, startTime time.Time) {
	p.Durations.WithLabelValues(requestType, host, method, status).Observe(time.Since(startTime).Seconds())
}

// MetricsRoundTripperOpts represents options for NewMetricsRoundTripperWithOpts.
type MetricsRoundTripperOpts struct {
	// RequestType is DefaultRequestType if empty.
	RequestType string
	Collector   MetricsCollector
}

// MetricsRoundTripper reports every request it sends to the MetricsCollector.
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Collector   MetricsCollector
}

// NewMetricsRoundTripperWithOpts creates a MetricsRoundTripper.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) *MetricsRoundTripper {
	requestType := opts.RequestType
	if requestType == "" {
		requestType = DefaultRequestType
	}
	return &MetricsRoundTripper{Delegate: delegate, RequestType: requestType, Collector: opts.Collector}
}

// RoundTrip implements http.RoundTripper.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}
	startTime := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := 0
	if err == nil && resp != nil {
		status = resp.StatusCode
	}
	rt.Collector.RequestDuration(rt.RequestType, r.URL.Host, r.Method, strconv.Itoa(status), startTime)
	return resp, err
}
