/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/log/logtest"
)

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newStatusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func doGet(t *testing.T, ctx context.Context, rt http.RoundTripper, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return resp, err
}

func TestLoggingRoundTripper(t *testing.T) {
	okServer := newStatusServer(t, http.StatusOK)
	failServer := newStatusServer(t, http.StatusBadGateway)

	t.Run("all mode logs successful request at debug level", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		ctx := middleware.NewContextWithLogger(context.Background(), logRecorder)
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
			RequestType: "lookup", SlowRequestThreshold: time.Minute,
		})
		_, err := doGet(t, ctx, rt, okServer.URL+"/x")
		require.NoError(t, err)

		require.Len(t, logRecorder.Entries(), 1)
		entry := logRecorder.Entries()[0]
		require.Equal(t, log.LevelDebug, entry.Level)
		require.Equal(t, "client HTTP request done", entry.Text)
		clientType, _ := entry.FieldString("client_type")
		require.Equal(t, "lookup", clientType)
		status, ok := entry.FindField("status")
		require.True(t, ok)
		require.Equal(t, int64(http.StatusOK), status.Int)
	})

	t.Run("failed mode skips successful requests", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		ctx := middleware.NewContextWithLogger(context.Background(), logRecorder)
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{Mode: LoggingModeFailed})
		_, err := doGet(t, ctx, rt, okServer.URL)
		require.NoError(t, err)
		require.Empty(t, logRecorder.Entries())

		_, err = doGet(t, ctx, rt, failServer.URL)
		require.NoError(t, err)
		require.Len(t, logRecorder.EntriesAtLevel(log.LevelWarn), 1)
	})

	t.Run("none mode", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt := NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
			Mode:           LoggingModeNone,
			LoggerProvider: func(context.Context) log.FieldLogger { return logRecorder },
		})
		_, err := doGet(t, context.Background(), rt, failServer.URL)
		require.NoError(t, err)
		require.Empty(t, logRecorder.Entries())
	})

	t.Run("transport error", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		transportErr := errors.New("connection refused")
		rt := NewLoggingRoundTripperWithOpts(roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, transportErr
		}), LoggingRoundTripperOpts{LoggerProvider: func(context.Context) log.FieldLogger { return logRecorder }})
		_, err := doGet(t, context.Background(), rt, "http://upstream.invalid")
		require.ErrorIs(t, err, transportErr)
		require.Len(t, logRecorder.EntriesAtLevel(log.LevelError), 1)
	})

	t.Run("time slot is added to incoming request logging params", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rt := NewLoggingRoundTripper(http.DefaultTransport, "lookup")
		handler := middleware.Logging(logRecorder)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			_, err := doGet(t, r.Context(), rt, okServer.URL)
			require.NoError(t, err)
			rw.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/lookup/company", nil))

		entry, ok := logRecorder.FindEntryContaining("response completed in")
		require.True(t, ok)
		timeSlots, ok := entry.FindField("time_slots")
		require.True(t, ok)
		require.Contains(t, fmt.Sprintf("%v", timeSlots.Any), "external_request_lookup_ms")
	})
}

func TestMetricsRoundTripper(t *testing.T) {
	server := newStatusServer(t, http.StatusCreated)
	collector := NewPrometheusMetricsCollector("")

	rt := NewMetricsRoundTripperWithOpts(http.DefaultTransport, MetricsRoundTripperOpts{Collector: collector})
	require.Equal(t, DefaultRequestType, rt.RequestType)
	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	failing := NewMetricsRoundTripperWithOpts(roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial error")
	}), MetricsRoundTripperOpts{RequestType: "webhook", Collector: collector})
	_, err = doGet(t, context.Background(), failing, "http://upstream.invalid/hook")
	require.Error(t, err)

	require.Equal(t, 2, testutil.CollectAndCount(collector.Durations))
	host := req.URL.Host
	hist := collector.Durations.WithLabelValues(DefaultRequestType, host, http.MethodPost, "201")
	require.Equal(t, 1, testutil.CollectAndCount(hist.(prometheus.Histogram)))
	hist = collector.Durations.WithLabelValues("webhook", "upstream.invalid", http.MethodGet, "0")
	require.Equal(t, 1, testutil.CollectAndCount(hist.(prometheus.Histogram)))
	require.Equal(t, 2, testutil.CollectAndCount(collector.Durations))
}

func TestRequestIDRoundTripper(t *testing.T) {
	var gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(RequestIDHeader)
	}))
	defer server.Close()

	rt := NewRequestIDRoundTripper(http.DefaultTransport)

	_, err := doGet(t, middleware.NewContextWithRequestID(context.Background(), "req-1"), rt, server.URL)
	require.NoError(t, err)
	require.Equal(t, "req-1", gotRequestID)

	_, err = doGet(t, context.Background(), rt, server.URL)
	require.NoError(t, err)
	require.Empty(t, gotRequestID)

	req, err := http.NewRequestWithContext(
		middleware.NewContextWithRequestID(context.Background(), "req-2"), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "explicit")
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "explicit", gotRequestID)
}

func TestAuthBearerRoundTripper(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	t.Run("static token", func(t *testing.T) {
		rt := NewAuthBearerRoundTripper(http.DefaultTransport, StaticTokenProvider("s3cr3t"))
		_, err := doGet(t, context.Background(), rt, server.URL)
		require.NoError(t, err)
		require.Equal(t, "Bearer s3cr3t", gotAuth)
	})

	t.Run("existing header is kept", func(t *testing.T) {
		rt := NewAuthBearerRoundTripper(http.DefaultTransport, StaticTokenProvider("s3cr3t"))
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Basic abc")
		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, "Basic abc", gotAuth)
	})

	t.Run("provider error", func(t *testing.T) {
		providerErr := errors.New("token expired")
		rt := NewAuthBearerRoundTripper(http.DefaultTransport, AuthProviderFunc(func(context.Context) (string, error) {
			return "", providerErr
		}))
		_, err := doGet(t, context.Background(), rt, server.URL)
		var authErr *AuthBearerRoundTripperError
		require.ErrorAs(t, err, &authErr)
		require.ErrorIs(t, err, providerErr)
	})
}

func TestIdempotentHintContext(t *testing.T) {
	require.False(t, GetIdempotentHintFromContext(context.Background()))
	require.True(t, GetIdempotentHintFromContext(NewContextWithIdempotentHint(context.Background(), true)))
	require.False(t, GetIdempotentHintFromContext(NewContextWithIdempotentHint(context.Background(), false)))
}
