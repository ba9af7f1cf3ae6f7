/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/leadforge/siteapi/config"
	"github.com/leadforge/siteapi/httpserver/middleware"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress                 = "address"
	cfgKeyServerTrustedProxies          = "trustedProxies"
	cfgKeyServerTimeoutsWrite           = "timeouts.write"
	cfgKeyServerTimeoutsRead            = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle            = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyServerLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyServerLogRequestStart         = "log.requestStart"
	cfgKeyServerLogRequestHeaders       = "log.requestHeaders"
	cfgKeyServerLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyServerLogSecretQueryParams    = "log.secretQueryParams" // nolint:gosec // false positive
	cfgKeyServerLogAddRequestInfo       = "log.addRequestInfo"
	cfgKeyServerLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyServerCORSMethods             = "cors.methods"
	cfgKeyServerCORSHeaders             = "cors.headers"
	cfgKeyServerCORSCredentials         = "cors.credentials"
	cfgKeyServerCORSOrigin              = "cors.origin"
)

const (
	defaultServerAddress            = ":8080"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
	defaultServerLimitsMaxBodySize  = "1M"
	defaultSlowRequestThreshold     = time.Second
)

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`

	// TrustedProxies lists reverse proxies (CIDRs or addresses) allowed to report the client address
	// in X-Forwarded-For and X-Real-IP. Empty means the peer address is the client.
	TrustedProxies middleware.TrustedProxies `mapstructure:"trustedProxies" yaml:"trustedProxies" json:"trustedProxies"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	CORS     CORSConfig     `mapstructure:"cors" yaml:"cors" json:"cors"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = defaultServerAddress
	cfg.Timeouts = TimeoutsConfig{
		Write:      config.TimeDuration(defaultServerTimeoutsWrite),
		Read:       config.TimeDuration(defaultServerTimeoutsRead),
		ReadHeader: config.TimeDuration(defaultServerTimeoutsReadHeader),
		Idle:       config.TimeDuration(defaultServerTimeoutsIdle),
		Shutdown:   config.TimeDuration(defaultServerTimeoutsShutdown),
	}
	cfg.Limits.MaxBodySize = 1024 * 1024
	cfg.Log.SlowRequestThreshold = config.TimeDuration(defaultSlowRequestThreshold)
	cfg.CORS = CORSConfig{
		Methods:     middleware.DefaultCORSMethods,
		Headers:     middleware.DefaultCORSHeaders,
		Credentials: true,
		Origin:      middleware.DefaultCORSOrigin,
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)

	dp.SetDefault(cfgKeyServerTimeoutsWrite, defaultServerTimeoutsWrite)
	dp.SetDefault(cfgKeyServerTimeoutsRead, defaultServerTimeoutsRead)
	dp.SetDefault(cfgKeyServerTimeoutsReadHeader, defaultServerTimeoutsReadHeader)
	dp.SetDefault(cfgKeyServerTimeoutsIdle, defaultServerTimeoutsIdle)
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown)

	dp.SetDefault(cfgKeyServerLimitsMaxBodySize, defaultServerLimitsMaxBodySize)

	dp.SetDefault(cfgKeyServerLogRequestStart, false)
	dp.SetDefault(cfgKeyServerLogAddRequestInfo, false)
	dp.SetDefault(cfgKeyServerLogSlowRequestThreshold, defaultSlowRequestThreshold)

	dp.SetDefault(cfgKeyServerCORSMethods, middleware.DefaultCORSMethods)
	dp.SetDefault(cfgKeyServerCORSHeaders, middleware.DefaultCORSHeaders)
	dp.SetDefault(cfgKeyServerCORSCredentials, true)
	dp.SetDefault(cfgKeyServerCORSOrigin, middleware.DefaultCORSOrigin)
}

// Set sets HTTPServer configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyServerAddress, fmt.Errorf("cannot be empty"))
	}
	var proxies []string
	if proxies, err = dp.GetStringSlice(cfgKeyServerTrustedProxies); err != nil {
		return err
	}
	if c.TrustedProxies, err = middleware.ParseTrustedProxies(proxies); err != nil {
		return dp.WrapKeyErr(cfgKeyServerTrustedProxies, err)
	}
	if err = c.Timeouts.Set(dp); err != nil {
		return err
	}
	if err = c.Limits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	return c.CORS.Set(dp)
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	for _, item := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyServerTimeoutsWrite, &t.Write},
		{cfgKeyServerTimeoutsRead, &t.Read},
		{cfgKeyServerTimeoutsReadHeader, &t.ReadHeader},
		{cfgKeyServerTimeoutsIdle, &t.Idle},
		{cfgKeyServerTimeoutsShutdown, &t.Shutdown},
	} {
		dur, err := dp.GetDuration(item.key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("cannot be negative"))
		}
		*item.dst = config.TimeDuration(dur)
	}
	return nil
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySize is the maximum size of the request body. Zero disables the limit.
	MaxBodySize config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// Set sets limit server configuration values from config.DataProvider.
func (l *LimitsConfig) Set(dp config.DataProvider) error {
	var err error
	l.MaxBodySize, err = dp.GetByteSize(cfgKeyServerLimitsMaxBodySize)
	return err
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart           bool                `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders         []string            `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints      []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SecretQueryParams      []string            `mapstructure:"secretQueryParams" yaml:"secretQueryParams" json:"secretQueryParams"`
	AddRequestInfoToLogger bool                `mapstructure:"addRequestInfo" yaml:"addRequestInfo" json:"addRequestInfo"`
	SlowRequestThreshold   config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set sets log server configuration values from config.DataProvider.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error

	if l.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if l.RequestHeaders, err = dp.GetStringSlice(cfgKeyServerLogRequestHeaders); err != nil {
		return err
	}
	if l.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyServerLogExcludedEndpoints); err != nil {
		return err
	}
	if l.SecretQueryParams, err = dp.GetStringSlice(cfgKeyServerLogSecretQueryParams); err != nil {
		return err
	}
	if l.AddRequestInfoToLogger, err = dp.GetBool(cfgKeyServerLogAddRequestInfo); err != nil {
		return err
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyServerLogSlowRequestThreshold); err != nil {
		return err
	}
	l.SlowRequestThreshold = config.TimeDuration(dur)
	return nil
}

func (l *LogConfig) loggingOpts(trustedProxies middleware.TrustedProxies) middleware.LoggingOpts {
	opts := middleware.LoggingOpts{
		TrustedProxies:         trustedProxies,
		RequestStart:           l.RequestStart,
		RequestHeaders:         make(map[string]string, len(l.RequestHeaders)),
		ExcludedEndpoints:      l.ExcludedEndpoints,
		SecretQueryParams:      l.SecretQueryParams,
		AddRequestInfoToLogger: l.AddRequestInfoToLogger,
		SlowRequestThreshold:   time.Duration(l.SlowRequestThreshold),
	}
	for _, headerName := range l.RequestHeaders {
		opts.RequestHeaders[headerName] = "req_header_" + strings.ToLower(strings.ReplaceAll(headerName, "-", "_"))
	}
	return opts
}

// CORSConfig is the cross-origin policy applied to every response.
type CORSConfig struct {
	Methods     []string `mapstructure:"methods" yaml:"methods" json:"methods"`
	Headers     string   `mapstructure:"headers" yaml:"headers" json:"headers"`
	Credentials bool     `mapstructure:"credentials" yaml:"credentials" json:"credentials"`
	Origin      string   `mapstructure:"origin" yaml:"origin" json:"origin"`
}

// Set sets CORS configuration values from config.DataProvider.
func (cc *CORSConfig) Set(dp config.DataProvider) error {
	var err error

	if cc.Methods, err = dp.GetStringSlice(cfgKeyServerCORSMethods); err != nil {
		return err
	}
	for _, method := range cc.Methods {
		if strings.TrimSpace(method) == "" {
			return dp.WrapKeyErr(cfgKeyServerCORSMethods, fmt.Errorf("cannot contain empty method"))
		}
	}
	if cc.Headers, err = dp.GetString(cfgKeyServerCORSHeaders); err != nil {
		return err
	}
	if cc.Credentials, err = dp.GetBool(cfgKeyServerCORSCredentials); err != nil {
		return err
	}
	if cc.Origin, err = dp.GetString(cfgKeyServerCORSOrigin); err != nil {
		return err
	}
	return nil
}

// CORSOpts converts the configuration to the options of the CORS middleware.
func (cc *CORSConfig) CORSOpts() middleware.CORSOpts {
	credentials := cc.Credentials
	return middleware.CORSOpts{
		Methods:     cc.Methods,
		Headers:     cc.Headers,
		Credentials: &credentials,
		Origin:      cc.Origin,
	}
}
