/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider backed by viper. Values are converted with cast.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars makes every key resolvable from environment variables.
// With prefix "siteapi", key "server.address" is looked up as SITEAPI_SERVER_ADDRESS.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.SetEnvPrefix(prefix)
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.AutomaticEnv()
}

// SetFromFile reads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader reads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// SetDefault registers the value used when no source provides the key.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// castKey converts the raw value of the key, a missing key gives the zero value.
func castKey[T any](va *ViperAdapter, key string, conv func(interface{}) (T, error)) (T, error) {
	val := va.viper.Get(key)
	if val == nil {
		var zero T
		return zero, nil
	}
	res, err := conv(val)
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetBool implements DataProvider.
func (va *ViperAdapter) GetBool(key string) (bool, error) { return castKey(va, key, cast.ToBoolE) }

// GetInt implements DataProvider.
func (va *ViperAdapter) GetInt(key string) (int, error) { return castKey(va, key, cast.ToIntE) }

// GetFloat64 implements DataProvider.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) { return castKey(va, key, cast.ToFloat64E) }

// GetString implements DataProvider.
func (va *ViperAdapter) GetString(key string) (string, error) { return castKey(va, key, cast.ToStringE) }

// GetDuration accepts strings like "1m30s" and integers (nanoseconds).
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castKey(va, key, cast.ToDurationE)
}

// GetStringSlice accepts lists and comma-separated strings (typical for env vars).
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return castKey(va, key, func(val interface{}) ([]string, error) {
		s, ok := val.(string)
		if !ok {
			return cast.ToStringSliceE(val)
		}
		var res []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				res = append(res, part)
			}
		}
		return res, nil
	})
}

// GetStringFromSet returns the value as string and checks that it belongs to the set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetByteSize accepts integers and human-readable strings ("10M", "1Mi").
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	return castKey(va, key, func(val interface{}) (ByteSize, error) {
		switch v := val.(type) {
		case ByteSize:
			return v, nil
		case string:
			if v == "" {
				return 0, nil
			}
			return parseByteSize(v)
		case float32, float64:
			return ByteSize(cast.ToUint64(v)), nil
		}
		num, err := cast.ToInt64E(val)
		if err != nil {
			return 0, err
		}
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return ByteSize(num), nil
	})
}

// UnmarshalKey implements DataProvider.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	viperOpts := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		viperOpts = append(viperOpts, viper.DecoderConfigOption(opt))
	}
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, viperOpts...))
}

// WrapKeyErr implements DataProvider.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
