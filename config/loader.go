/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "io"

// Loader fills configuration objects from a DataProvider in two passes:
// defaults of every object are registered first, so that one object may read keys of another.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a viper-backed Loader that also resolves keys from environment variables.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new Loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// LoadFromFile reads the file and fills the configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.loadFrom(func(dp DataProvider) error { return dp.SetFromFile(path, dataType) }, cfg, cfgs)
}

// LoadFromReader reads the data and fills the configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.loadFrom(func(dp DataProvider) error { return dp.SetFromReader(reader, dataType) }, cfg, cfgs)
}

// Load fills the configuration objects from defaults and environment variables only.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.loadFrom(nil, cfg, cfgs)
}

func (l *Loader) loadFrom(readSource func(dp DataProvider) error, first Config, rest []Config) error {
	if readSource != nil {
		if err := readSource(l.DataProvider); err != nil {
			return err
		}
	}
	all := append([]Config{first}, rest...)
	scoped := make([]DataProvider, len(all))
	for i, cfg := range all {
		scoped[i] = dataProviderFor(l.DataProvider, cfg)
		cfg.SetProviderDefaults(scoped[i])
	}
	for i, cfg := range all {
		if err := cfg.Set(scoped[i]); err != nil {
			return err
		}
	}
	return nil
}
