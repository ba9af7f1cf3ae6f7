/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/leadforge/siteapi/config"
	"github.com/leadforge/siteapi/retry"
)

const cfgDefaultKeyPrefix = "client"

// Retry policy strategies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

const (
	cfgKeyTimeout                                 = "timeout"
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMax                              = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                       = "rateLimits.enabled"
	cfgKeyRateLimitsLimit                         = "rateLimits.limit"
	cfgKeyRateLimitsBurst                         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout                   = "rateLimits.waitTimeout"
	cfgKeyLogEnabled                              = "log.enabled"
	cfgKeyLogMode                                 = "log.mode"
	cfgKeyLogSlowRequestThreshold                 = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled                          = "metrics.enabled"
)

// Default values.
const (
	DefaultTimeout                           = 5 * time.Second
	DefaultMaxRetryAttempts                  = 2
	DefaultExponentialBackoffInitialInterval = 200 * time.Millisecond
	DefaultExponentialBackoffMultiplier      = 2
	DefaultSlowRequestThreshold              = time.Second
)

var availableRetryStrategies = []string{RetryPolicyExponential, RetryPolicyConstant}

// Config represents options for the downstream HTTP client.
type Config struct {
	// Timeout bounds the whole request including retries and reading the response body.
	Timeout    config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Retries    RetriesConfig       `mapstructure:"retries" yaml:"retries" json:"retries"`
	RateLimits RateLimitsConfig    `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Log        LogConfig           `mapstructure:"log" yaml:"log" json:"log"`
	Metrics    MetricsConfig       `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RetriesConfig represents configuration options for retrying of failed requests.
type RetriesConfig struct {
	Enabled     bool         `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts int          `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	Policy      PolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// PolicyConfig represents configuration options for the backoff between retry attempts.
type PolicyConfig struct {
	Strategy                          string              `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	ExponentialBackoffInitialInterval config.TimeDuration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval" json:"exponentialBackoffInitialInterval"` //nolint:lll
	ExponentialBackoffMultiplier      float64             `mapstructure:"exponentialBackoffMultiplier" yaml:"exponentialBackoffMultiplier" json:"exponentialBackoffMultiplier"`
	ConstantBackoffInterval           config.TimeDuration `mapstructure:"constantBackoffInterval" yaml:"constantBackoffInterval" json:"constantBackoffInterval"`
}

// RateLimitsConfig represents configuration options for client side rate limiting.
type RateLimitsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// Limit is the number of requests per second.
	Limit       int                 `mapstructure:"limit" yaml:"limit" json:"limit"`
	Burst       int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// LogConfig represents configuration options for logging of outgoing requests.
type LogConfig struct {
	Enabled              bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Mode                 LoggingMode         `mapstructure:"mode" yaml:"mode" json:"mode"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// MetricsConfig represents configuration options for metrics of outgoing requests.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
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
	cfg.Timeout = config.TimeDuration(DefaultTimeout)
	cfg.Retries = RetriesConfig{
		Enabled:     true,
		MaxAttempts: DefaultMaxRetryAttempts,
		Policy: PolicyConfig{
			Strategy:                          RetryPolicyExponential,
			ExponentialBackoffInitialInterval: config.TimeDuration(DefaultExponentialBackoffInitialInterval),
			ExponentialBackoffMultiplier:      DefaultExponentialBackoffMultiplier,
		},
	}
	cfg.Log = LogConfig{
		Enabled:              true,
		Mode:                 LoggingModeAll,
		SlowRequestThreshold: config.TimeDuration(DefaultSlowRequestThreshold),
	}
	cfg.Metrics.Enabled = true
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
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout)
	dp.SetDefault(cfgKeyRetriesEnabled, true)
	dp.SetDefault(cfgKeyRetriesMax, DefaultMaxRetryAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, RetryPolicyExponential)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitialInterval, DefaultExponentialBackoffInitialInterval)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMultiplier, DefaultExponentialBackoffMultiplier)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
	dp.SetDefault(cfgKeyLogEnabled, true)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeAll))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultSlowRequestThreshold)
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("must be positive"))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

// Set sets retries configuration values from config.DataProvider.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMax); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMax, fmt.Errorf("cannot be negative"))
	}

	if c.Policy.Strategy, err = dp.GetStringFromSet(cfgKeyRetriesPolicyStrategy, availableRetryStrategies, false); err != nil {
		return err
	}
	var dur time.Duration
	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		if dur, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialInitialInterval); err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialInitialInterval, fmt.Errorf("cannot be negative"))
		}
		c.Policy.ExponentialBackoffInitialInterval = config.TimeDuration(dur)
		if c.Policy.ExponentialBackoffMultiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier); err != nil {
			return err
		}
		if c.Policy.ExponentialBackoffMultiplier <= 1 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMultiplier, fmt.Errorf("must be greater than 1"))
		}
	case RetryPolicyConstant:
		if dur, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval); err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyConstantInterval, fmt.Errorf("cannot be negative"))
		}
		c.Policy.ConstantBackoffInterval = config.TimeDuration(dur)
	}
	return nil
}

// GetPolicy returns a retry policy based on the configured strategy.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	switch c.Policy.Strategy {
	case RetryPolicyConstant:
		interval := time.Duration(c.Policy.ConstantBackoffInterval)
		return retry.PolicyFunc(func() backoff.BackOff {
			return backoff.NewConstantBackOff(interval)
		})
	case RetryPolicyExponential:
		initialInterval := time.Duration(c.Policy.ExponentialBackoffInitialInterval)
		multiplier := c.Policy.ExponentialBackoffMultiplier
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewExponentialBackOff()
			bf.InitialInterval = initialInterval
			bf.Multiplier = multiplier
			bf.Reset()
			return bf
		})
	}
	return nil
}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *RateLimitsConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("must be positive"))
	}
	if c.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("cannot be negative"))
	}
	var waitTimeout time.Duration
	if waitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("cannot be negative"))
	}
	c.WaitTimeout = config.TimeDuration(waitTimeout)
	return nil
}

// TransportOpts returns options for RateLimitingRoundTripper.
func (c *RateLimitsConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: time.Duration(c.WaitTimeout)}
}

// Set sets logging configuration values from config.DataProvider.
func (c *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	var mode string
	if mode, err = dp.GetString(cfgKeyLogMode); err != nil {
		return err
	}
	if c.Mode = LoggingMode(mode); !c.Mode.IsValid() {
		return dp.WrapKeyErr(cfgKeyLogMode, fmt.Errorf("unknown value %q, should be one of [none all failed]", mode))
	}

	var threshold time.Duration
	if threshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, fmt.Errorf("cannot be negative"))
	}
	c.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}
