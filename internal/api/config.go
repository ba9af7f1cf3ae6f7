/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadforge/siteapi/config"
	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/internal/ratelimit"
)

const cfgDefaultKeyPrefix = "api"

const (
	cfgKeyUpstreamBaseURL         = "upstream.baseURL"
	cfgKeyUpstreamCacheTTL        = "upstream.cacheTTL"
	cfgKeyUpstreamHeaders         = "upstream.headers"
	cfgKeyContactWebhookURL       = "contact.webhookURL"
	cfgKeyContactWebhookToken     = "contact.webhookToken" // nolint:gosec // false positive
	cfgKeyContactDeliveryAttempts = "contact.deliveryAttempts"
	cfgKeyContactRateLimitRate    = "contact.rateLimit.rate"
	cfgKeyContactRateLimitAlg     = "contact.rateLimit.alg"
	cfgKeyContactRateLimitBurst   = "contact.rateLimit.maxBurst"
	cfgKeyCacheMaxEntries         = "cache.maxEntries"
	cfgKeyCacheDefaultTTL         = "cache.defaultTTL"
	cfgKeyCacheCleanupInterval    = "cache.cleanupInterval"
	cfgKeyCacheAdminToken         = "cache.adminToken" // nolint:gosec // false positive
)

// Rate limiting algorithms for the contact endpoint.
const (
	RateLimitAlgLeakyBucket   = "leaky_bucket"
	RateLimitAlgSlidingWindow = "sliding_window"
)

const (
	defaultUpstreamCacheTTL        = 5 * time.Minute
	defaultContactDeliveryAttempts = 3
	defaultContactRateLimitRate    = "5/m"
	defaultContactRateLimitBurst   = 2
	defaultCacheMaxEntries         = 1000
	defaultCacheDefaultTTL         = 10 * time.Minute
	defaultCacheCleanupInterval    = time.Minute
)

// Config represents configuration of the site API handlers and the response cache they share.
type Config struct {
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream" json:"upstream"`
	Contact  ContactConfig  `mapstructure:"contact" yaml:"contact" json:"contact"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache" json:"cache"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// UpstreamConfig configures the lookup proxy. Empty BaseURL disables lookups (503).
type UpstreamConfig struct {
	BaseURL  string              `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`
	CacheTTL config.TimeDuration `mapstructure:"cacheTTL" yaml:"cacheTTL" json:"cacheTTL"`

	// Headers are added to every upstream request (e.g. an API key). Values may hold secrets.
	Headers map[string]string `mapstructure:"headers" yaml:"headers" json:"-"`
}

// ContactConfig configures the contact form. Empty WebhookURL disables the form (503).
type ContactConfig struct {
	WebhookURL       string          `mapstructure:"webhookURL" yaml:"webhookURL" json:"webhookURL"`
	WebhookToken     string          `mapstructure:"webhookToken" yaml:"webhookToken" json:"-"`
	DeliveryAttempts int             `mapstructure:"deliveryAttempts" yaml:"deliveryAttempts" json:"deliveryAttempts"`
	RateLimit        RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
}

// RateLimitConfig configures per client IP rate limiting.
type RateLimitConfig struct {
	Rate     ratelimit.Rate `mapstructure:"rate" yaml:"rate" json:"rate"`
	Alg      string         `mapstructure:"alg" yaml:"alg" json:"alg"`
	MaxBurst int            `mapstructure:"maxBurst" yaml:"maxBurst" json:"maxBurst"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	MaxEntries      int                 `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
	DefaultTTL      config.TimeDuration `mapstructure:"defaultTTL" yaml:"defaultTTL" json:"defaultTTL"`
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`

	// AdminToken protects the cache administration endpoints with bearer authorization when set.
	AdminToken string `mapstructure:"adminToken" yaml:"adminToken" json:"-"`
}

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
	cfg.Upstream.CacheTTL = config.TimeDuration(defaultUpstreamCacheTTL)
	cfg.Contact.DeliveryAttempts = defaultContactDeliveryAttempts
	cfg.Contact.RateLimit = RateLimitConfig{
		Rate:     ratelimit.Rate{Count: 5, Duration: time.Minute},
		Alg:      RateLimitAlgLeakyBucket,
		MaxBurst: defaultContactRateLimitBurst,
	}
	cfg.Cache = CacheConfig{
		MaxEntries:      defaultCacheMaxEntries,
		DefaultTTL:      config.TimeDuration(defaultCacheDefaultTTL),
		CleanupInterval: config.TimeDuration(defaultCacheCleanupInterval),
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyUpstreamCacheTTL, defaultUpstreamCacheTTL)
	dp.SetDefault(cfgKeyContactDeliveryAttempts, defaultContactDeliveryAttempts)
	dp.SetDefault(cfgKeyContactRateLimitRate, defaultContactRateLimitRate)
	dp.SetDefault(cfgKeyContactRateLimitAlg, RateLimitAlgLeakyBucket)
	dp.SetDefault(cfgKeyContactRateLimitBurst, defaultContactRateLimitBurst)
	dp.SetDefault(cfgKeyCacheMaxEntries, defaultCacheMaxEntries)
	dp.SetDefault(cfgKeyCacheDefaultTTL, defaultCacheDefaultTTL)
	dp.SetDefault(cfgKeyCacheCleanupInterval, defaultCacheCleanupInterval)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	if err := c.setUpstream(dp); err != nil {
		return err
	}
	if err := c.setContact(dp); err != nil {
		return err
	}
	return c.setCache(dp)
}

func (c *Config) setUpstream(dp config.DataProvider) error {
	var err error
	if c.Upstream.BaseURL, err = getOptionalURL(dp, cfgKeyUpstreamBaseURL); err != nil {
		return err
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	if err = setNonNegativeDuration(dp, cfgKeyUpstreamCacheTTL, &c.Upstream.CacheTTL); err != nil {
		return err
	}
	var headers map[string]string
	if err = dp.UnmarshalKey(cfgKeyUpstreamHeaders, &headers); err != nil {
		return err
	}
	c.Upstream.Headers = nil
	for name, val := range headers {
		if name = strings.TrimSpace(name); name == "" {
			return dp.WrapKeyErr(cfgKeyUpstreamHeaders, fmt.Errorf("header name cannot be empty"))
		}
		if c.Upstream.Headers == nil {
			c.Upstream.Headers = make(map[string]string, len(headers))
		}
		c.Upstream.Headers[http.CanonicalHeaderKey(name)] = val
	}
	return nil
}

func (c *Config) setContact(dp config.DataProvider) error {
	var err error
	if c.Contact.WebhookURL, err = getOptionalURL(dp, cfgKeyContactWebhookURL); err != nil {
		return err
	}
	if c.Contact.WebhookToken, err = dp.GetString(cfgKeyContactWebhookToken); err != nil {
		return err
	}
	if c.Contact.DeliveryAttempts, err = dp.GetInt(cfgKeyContactDeliveryAttempts); err != nil {
		return err
	}
	if c.Contact.DeliveryAttempts < 1 {
		return dp.WrapKeyErr(cfgKeyContactDeliveryAttempts, fmt.Errorf("must be at least 1"))
	}

	rateStr, err := dp.GetString(cfgKeyContactRateLimitRate)
	if err != nil {
		return err
	}
	if c.Contact.RateLimit.Rate, err = ratelimit.ParseRate(rateStr); err != nil {
		return dp.WrapKeyErr(cfgKeyContactRateLimitRate, err)
	}
	if c.Contact.RateLimit.Alg, err = dp.GetStringFromSet(cfgKeyContactRateLimitAlg,
		[]string{RateLimitAlgLeakyBucket, RateLimitAlgSlidingWindow}, false); err != nil {
		return err
	}
	if c.Contact.RateLimit.MaxBurst, err = dp.GetInt(cfgKeyContactRateLimitBurst); err != nil {
		return err
	}
	if c.Contact.RateLimit.MaxBurst < 0 {
		return dp.WrapKeyErr(cfgKeyContactRateLimitBurst, fmt.Errorf("cannot be negative"))
	}
	return nil
}

func (c *Config) setCache(dp config.DataProvider) error {
	var err error
	if c.Cache.MaxEntries, err = dp.GetInt(cfgKeyCacheMaxEntries); err != nil {
		return err
	}
	if c.Cache.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyCacheMaxEntries, fmt.Errorf("must be positive"))
	}
	if err = setNonNegativeDuration(dp, cfgKeyCacheDefaultTTL, &c.Cache.DefaultTTL); err != nil {
		return err
	}
	var interval time.Duration
	if interval, err = dp.GetDuration(cfgKeyCacheCleanupInterval); err != nil {
		return err
	}
	if interval <= 0 {
		return dp.WrapKeyErr(cfgKeyCacheCleanupInterval, fmt.Errorf("must be positive"))
	}
	c.Cache.CleanupInterval = config.TimeDuration(interval)
	c.Cache.AdminToken, err = dp.GetString(cfgKeyCacheAdminToken)
	return err
}

// RateLimitOpts returns options for the rate limiting middleware.
func (rc *RateLimitConfig) RateLimitOpts(isProduction bool) middleware.RateLimitOpts {
	alg := middleware.RateLimitAlgLeakyBucket
	if rc.Alg == RateLimitAlgSlidingWindow {
		alg = middleware.RateLimitAlgSlidingWindow
	}
	return middleware.RateLimitOpts{Alg: alg, MaxBurst: rc.MaxBurst, IsProduction: isProduction}
}

func getOptionalURL(dp config.DataProvider, key string) (string, error) {
	val, err := dp.GetString(key)
	if err != nil || val == "" {
		return val, err
	}
	u, err := url.Parse(val)
	if err != nil {
		return "", dp.WrapKeyErr(key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", dp.WrapKeyErr(key, fmt.Errorf("must be an absolute http(s) URL"))
	}
	return val, nil
}

func setNonNegativeDuration(dp config.DataProvider, key string, dst *config.TimeDuration) error {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(key, fmt.Errorf("cannot be negative"))
	}
	*dst = config.TimeDuration(dur)
	return nil
}
