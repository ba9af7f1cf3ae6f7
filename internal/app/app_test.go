/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/leadforge/siteapi/config"
	"github.com/leadforge/siteapi/internal/version"
	"github.com/leadforge/siteapi/log/logtest"
	"github.com/leadforge/siteapi/testutil"
)

func TestApp_Run(t *testing.T) {
	var upstreamCalls atomic.Int32
	var gotUserAgent atomic.String
	upstream := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		upstreamCalls.Inc()
		gotUserAgent.Store(r.UserAgent())
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"temp":18}`))
	}))
	defer upstream.Close()

	var gotAuth atomic.String
	webhook := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		rw.WriteHeader(http.StatusAccepted)
	}))
	defer webhook.Close()

	cfgData := strings.NewReplacer("{upstream}", upstream.URL, "{webhook}", webhook.URL).Replace(`
app:
  environment: test
  metricsNamespace: siteapi_test
api:
  upstream:
    baseURL: {upstream}
  contact:
    webhookURL: {webhook}
    webhookToken: hook-token
  cache:
    cleanupInterval: 50ms
`)
	cfg := NewConfig()
	require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	baseURL := "http://" + listener.Addr().String()

	logRecorder := logtest.NewRecorder()
	application, err := New(cfg, logRecorder, Opts{Listener: listener})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	t.Run("health check", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/healthz")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		testutil.RequireStringJSONInResponse(t, resp, `{"components":{"cache":true}}`)
	})

	t.Run("lookup is served from the cache", func(t *testing.T) {
		for i, wantCached := range []bool{false, true} {
			resp, err := http.Get(baseURL + "/api/v1/lookup/weather?q=paris")
			require.NoError(t, err)
			var body struct {
				Success bool            `json:"success"`
				Data    json.RawMessage `json:"data"`
				Cached  bool            `json:"cached"`
			}
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.NoError(t, resp.Body.Close())
			require.Equal(t, wantCached, body.Cached, "request #%d", i)
		}
		require.Equal(t, int32(1), upstreamCalls.Load())
		require.Equal(t, version.UserAgent(), gotUserAgent.Load())
		require.Equal(t, 1, application.Cache.Len())
	})

	t.Run("contact form is delivered with the webhook token", func(t *testing.T) {
		resp, err := http.Post(baseURL+"/api/v1/contact", "application/json",
			strings.NewReader(`{"name":"Jane","email":"jane@example.com","message":"Hi"}`))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		testutil.RequireSuccessInResponse(t, resp, http.StatusOK, nil)
		require.Equal(t, "Bearer hook-token", gotAuth.Load())
	})

	t.Run("CORS preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, baseURL+"/api/v1/contact", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		require.Empty(t, resp.Header.Get("Content-Type"))
		testutil.RequireEmptyBodyInResponse(t, resp)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/unknown")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		testutil.RequireErrorInResponse(t, resp, http.StatusNotFound, "Not found.")
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/metrics")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "siteapi_test_response_cache_entries_amount")
		require.Contains(t, string(body), "siteapi_test_http_client_request_duration_seconds")
		require.Contains(t, string(body), "siteapi_test_restapi_response_errors_total")
	})

	cancel()
	select {
	case err = <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application was not stopped")
	}
	_, found := logRecorder.FindEntry("service stopped")
	require.True(t, found)
}

func TestNew_InvalidRateLimitConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(`{}`), config.DataTypeJSON, cfg))
	cfg.API.Contact.RateLimit.Rate.Count = 0

	_, err := New(cfg, logtest.NewRecorder(), Opts{})
	require.ErrorContains(t, err, "create API routes")
}
