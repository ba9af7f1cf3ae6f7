/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes that can be decoded both from integers and human-readable strings ("512K", "10MB", "1Mi").
type ByteSize uint64

// TimeDuration is a time.Duration that can be decoded both from integers (nanoseconds) and strings ("1h30m").
type TimeDuration time.Duration

// k8s-style power-of-two suffixes ("Ki", "Mi", ...) are accepted as their bytefmt equivalents ("K", "M", ...).
var k8sByteSuffixes = strings.NewReplacer("Ki", "K", "Mi", "M", "Gi", "G", "Ti", "T", "Pi", "P", "Ei", "E")

func parseByteSize(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	if num, err := strconv.ParseUint(v, 10, 64); err == nil {
		return ByteSize(num), nil
	}
	num, err := bytefmt.ToBytes(k8sByteSuffixes.Replace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return ByteSize(num), nil
}

func parseTimeDuration(s string) (TimeDuration, error) {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	return TimeDuration(dur), nil
}

// decodeScalar accepts a non-negative integer or a string handled by parse.
func decodeScalar[T ~uint64 | ~int64](raw string, parse func(string) (T, error)) (T, error) {
	if num, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return T(num), nil
	}
	return parse(raw)
}

func yamlScalar(value *yaml.Node) (string, error) {
	if value.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("scalar value expected at line %d", value.Line)
	}
	return value.Value, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) (err error) {
	*b, err = decodeScalar(strings.Trim(string(data), `"`), parseByteSize)
	return err
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	raw, err := yamlScalar(value)
	if err != nil {
		return err
	}
	*b, err = decodeScalar(raw, parseByteSize)
	return err
}

// String returns a human-readable representation.
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimeDuration) UnmarshalJSON(data []byte) (err error) {
	*d, err = decodeScalar(strings.Trim(string(data), `"`), parseTimeDuration)
	return err
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	raw, err := yamlScalar(value)
	if err != nil {
		return err
	}
	*d, err = decodeScalar(raw, parseTimeDuration)
	return err
}

// String returns a human-readable representation.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
