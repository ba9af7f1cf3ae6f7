/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadforge/siteapi/config"
	"github.com/leadforge/siteapi/httpserver/middleware"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		want    func() *Config
		wantErr string
	}{
		{
			name:    "defaults",
			cfgData: `{}`,
			want:    func() *Config { return NewDefaultConfig() },
		},
		{
			name: "custom values",
			cfgData: `
server:
  address: "127.0.0.1:9000"
  trustedProxies: [10.0.0.0/8, 192.0.2.10]
  timeouts:
    write: 30s
    read: 5s
    readHeader: 2s
    idle: 2m
    shutdown: 10s
  limits:
    maxBodySize: 64K
  log:
    requestStart: true
    requestHeaders: [X-Client-Version]
    excludedEndpoints: [/healthz]
    secretQueryParams: [token]
    addRequestInfo: true
    slowRequestThreshold: 500ms
  cors:
    methods: [GET, POST, OPTIONS]
    headers: Content-Type
    credentials: false
    origin: https://example.com
`,
			want: func() *Config {
				cfg := NewConfig()
				cfg.Address = "127.0.0.1:9000"
				cfg.TrustedProxies = middleware.TrustedProxies{
					netip.MustParsePrefix("10.0.0.0/8"),
					netip.MustParsePrefix("192.0.2.10/32"),
				}
				cfg.Timeouts = TimeoutsConfig{
					Write:      config.TimeDuration(30 * time.Second),
					Read:       config.TimeDuration(5 * time.Second),
					ReadHeader: config.TimeDuration(2 * time.Second),
					Idle:       config.TimeDuration(2 * time.Minute),
					Shutdown:   config.TimeDuration(10 * time.Second),
				}
				cfg.Limits.MaxBodySize = 64 * 1024
				cfg.Log = LogConfig{
					RequestStart:           true,
					RequestHeaders:         []string{"X-Client-Version"},
					ExcludedEndpoints:      []string{"/healthz"},
					SecretQueryParams:      []string{"token"},
					AddRequestInfoToLogger: true,
					SlowRequestThreshold:   config.TimeDuration(500 * time.Millisecond),
				}
				cfg.CORS = CORSConfig{
					Methods:     []string{"GET", "POST", "OPTIONS"},
					Headers:     "Content-Type",
					Credentials: false,
					Origin:      "https://example.com",
				}
				return cfg
			},
		},
		{
			name:    "empty address",
			cfgData: "server:\n  address: \"\"\n",
			wantErr: "server.address: cannot be empty",
		},
		{
			name:    "invalid trusted proxy",
			cfgData: "server:\n  trustedProxies: [proxy.local]\n",
			wantErr: "server.trustedProxies",
		},
		{
			name:    "negative timeout",
			cfgData: "server:\n  timeouts:\n    read: -1s\n",
			wantErr: "server.timeouts.read: cannot be negative",
		},
		{
			name:    "invalid body size",
			cfgData: "server:\n  limits:\n    maxBodySize: huge\n",
			wantErr: "server.limits.maxBodySize",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			want := tt.want()
			require.Equal(t, want.Address, cfg.Address)
			require.Equal(t, want.TrustedProxies, cfg.TrustedProxies)
			require.Equal(t, want.Timeouts, cfg.Timeouts)
			require.Equal(t, want.Limits, cfg.Limits)
			require.Equal(t, want.Log.RequestStart, cfg.Log.RequestStart)
			require.ElementsMatch(t, want.Log.RequestHeaders, cfg.Log.RequestHeaders)
			require.ElementsMatch(t, want.Log.ExcludedEndpoints, cfg.Log.ExcludedEndpoints)
			require.ElementsMatch(t, want.Log.SecretQueryParams, cfg.Log.SecretQueryParams)
			require.Equal(t, want.Log.SlowRequestThreshold, cfg.Log.SlowRequestThreshold)
			require.Equal(t, want.CORS, cfg.CORS)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Log.RequestHeaders = []string{"X-Client-Version"}

	trusted := middleware.TrustedProxies{netip.MustParsePrefix("10.0.0.0/8")}
	loggingOpts := cfg.Log.loggingOpts(trusted)
	require.Equal(t, trusted, loggingOpts.TrustedProxies)
	require.Equal(t, map[string]string{"X-Client-Version": "req_header_x_client_version"}, loggingOpts.RequestHeaders)
	require.Equal(t, time.Second, loggingOpts.SlowRequestThreshold)

	corsOpts := cfg.CORS.CORSOpts()
	require.Equal(t, middleware.DefaultCORSMethods, corsOpts.Methods)
	require.Equal(t, middleware.DefaultCORSOrigin, corsOpts.Origin)
	require.NotNil(t, corsOpts.Credentials)
	require.True(t, *corsOpts.Credentials)
}
