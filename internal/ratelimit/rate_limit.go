/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// ParseRate parses rate in the "<count>/<unit>" format, where unit is one of "s", "m", "h".
func ParseRate(s string) (Rate, error) {
	countStr, unit, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		return Rate{}, fmt.Errorf("incorrect format for rate %q, should be N/(s|m|h), for example 10/m", s)
	}
	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count <= 0 {
		return Rate{}, fmt.Errorf("incorrect count %q for rate, should be a positive integer", countStr)
	}
	var dur time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		return Rate{}, fmt.Errorf("incorrect unit %q for rate, should be one of s, m, h", unit)
	}
	return Rate{Count: count, Duration: dur}, nil
}

// String returns the "<count>/<unit>" representation of the rate.
func (r Rate) String() string {
	switch r.Duration {
	case time.Second:
		return fmt.Sprintf("%d/s", r.Count)
	case time.Minute:
		return fmt.Sprintf("%d/m", r.Count)
	case time.Hour:
		return fmt.Sprintf("%d/h", r.Count)
	}
	return fmt.Sprintf("%d/%s", r.Count, r.Duration)
}

// MarshalText implements encoding.TextMarshaler, so the effective config is printed as "5/m".
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rate) UnmarshalText(text []byte) error {
	parsed, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
