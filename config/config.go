/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration of the site API components from files, readers and environment variables.
// Each component describes its own parameters by implementing the Config interface,
// and Loader fills all of them from a single DataProvider.
package config

import (
	"fmt"
	"reflect"
)

// Config is implemented by every configuration object that Loader can fill.
type Config interface {
	// SetProviderDefaults registers default values in the data provider before loading.
	SetProviderDefaults(dp DataProvider)

	// Set reads values from the data provider and validates them.
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects whose parameters live under a common key prefix
// (e.g. "server" for "server.address").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// WrapKeyErr adds the key where the error occurred to the error message.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

// WrapKeyErrIfNeeded is like WrapKeyErr but returns nil for nil error.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}

// dataProviderFor returns a data provider that resolves keys relatively to the config's key prefix (if any).
func dataProviderFor(dp DataProvider, cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for every exported non-nil field of the struct
// pointed by obj that implements Config. It allows an aggregate config to be loaded as a single Config.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	for _, cfg := range configFields(obj) {
		cfg.SetProviderDefaults(dataProviderFor(dp, cfg))
	}
}

// CallSetForFields calls Set for every exported non-nil field of the struct pointed by obj that implements Config.
// The first error is returned.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	for _, cfg := range configFields(obj) {
		if err := cfg.Set(dataProviderFor(dp, cfg)); err != nil {
			return err
		}
	}
	return nil
}

func configFields(obj interface{}) []Config {
	el := reflect.ValueOf(obj).Elem()
	var cfgs []Config
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		field := el.Field(i)
		if field.Kind() == reflect.Ptr && field.IsNil() {
			continue
		}
		if cfg, ok := field.Interface().(Config); ok {
			cfgs = append(cfgs, cfg)
		}
	}
	return cfgs
}
