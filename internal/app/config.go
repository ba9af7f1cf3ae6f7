/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leadforge/siteapi/config"
	"github.com/leadforge/siteapi/httpclient"
	"github.com/leadforge/siteapi/httpserver"
	"github.com/leadforge/siteapi/internal/api"
	"github.com/leadforge/siteapi/log"
)

// EnvVarsPrefix is the prefix of environment variables overriding configuration values
// (e.g. SITEAPI_APP_ENVIRONMENT for "app.environment").
const EnvVarsPrefix = "SITEAPI"

// Environments.
const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
	EnvironmentTest        = "test"
)

const (
	cfgKeyAppEnvironment      = "environment"
	cfgKeyAppMetricsNamespace = "metricsNamespace"
)

const defaultMetricsNamespace = "siteapi"

// AppConfig contains process-wide settings.
type AppConfig struct {
	Environment      string `mapstructure:"environment" yaml:"environment" json:"environment"`
	MetricsNamespace string `mapstructure:"metricsNamespace" yaml:"metricsNamespace" json:"metricsNamespace"`
}

var _ config.Config = (*AppConfig)(nil)
var _ config.KeyPrefixProvider = (*AppConfig)(nil)

// KeyPrefix implements config.KeyPrefixProvider.
func (c *AppConfig) KeyPrefix() string {
	return "app"
}

// SetProviderDefaults implements config.Config.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAppEnvironment, EnvironmentProduction)
	dp.SetDefault(cfgKeyAppMetricsNamespace, defaultMetricsNamespace)
}

// Set implements config.Config.
func (c *AppConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Environment, err = dp.GetStringFromSet(cfgKeyAppEnvironment,
		[]string{EnvironmentProduction, EnvironmentDevelopment, EnvironmentTest}, true); err != nil {
		return err
	}
	c.Environment = strings.ToLower(c.Environment)
	c.MetricsNamespace, err = dp.GetString(cfgKeyAppMetricsNamespace)
	return err
}

// IsProduction reports whether error responses must be redacted.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// Config is the configuration of the whole application.
type Config struct {
	App            *AppConfig
	Log            *log.Config
	Server         *httpserver.Config
	API            *api.Config
	UpstreamClient *httpclient.Config
	WebhookClient  *httpclient.Config
}

var _ config.Config = (*Config)(nil)

// NewConfig creates a new Config, every section has its own key prefix.
func NewConfig() *Config {
	return &Config{
		App:            &AppConfig{},
		Log:            log.NewConfig(),
		Server:         httpserver.NewConfig(),
		API:            api.NewConfig(),
		UpstreamClient: httpclient.NewConfig(httpclient.WithKeyPrefix("upstreamClient")),
		WebhookClient:  httpclient.NewConfig(httpclient.WithKeyPrefix("webhookClient")),
	}
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

// LoadConfig loads the application config from the YAML or JSON file (chosen by extension)
// with environment variables overrides. Only defaults and environment variables are used when path is empty.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	loader := config.NewDefaultLoader(EnvVarsPrefix)
	if path == "" {
		if err := loader.Load(cfg); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	dataType := config.DataTypeYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dataType = config.DataTypeJSON
	}
	if err := loader.LoadFromFile(path, dataType, cfg); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	return cfg, nil
}
