/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/leadforge/siteapi/respcache"
)

// SlidingWindowLimiter allows at most Rate.Count requests per key within any window of Rate.Duration.
type SlidingWindowLimiter struct {
	rate    Rate
	windows *respcache.Cache[string, *slidingwindow.Limiter]
	shared  *slidingwindow.Limiter
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a SlidingWindowLimiter.
// Windows of at most maxKeys keys are kept, a window idle for two durations is forgotten.
// With maxKeys equal to 0 every key shares the same window.
func NewSlidingWindowLimiter(rate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	l := &SlidingWindowLimiter{rate: rate}
	if maxKeys == 0 {
		l.shared = l.newWindow()
		return l, nil
	}
	var err error
	if l.windows, err = respcache.NewWithOpts[string, *slidingwindow.Limiter](maxKeys, nil,
		respcache.Options[string, *slidingwindow.Limiter]{DefaultTTL: 2 * rate.Duration}); err != nil {
		return nil, fmt.Errorf("create windows cache: %w", err)
	}
	return l, nil
}

func (l *SlidingWindowLimiter) newWindow() *slidingwindow.Limiter {
	lim, _ := slidingwindow.NewLimiter(l.rate.Duration, int64(l.rate.Count),
		func() (slidingwindow.Window, slidingwindow.StopFunc) { return slidingwindow.NewLocalWindow() })
	return lim
}

func (l *SlidingWindowLimiter) window(key string) *slidingwindow.Limiter {
	if l.shared != nil {
		return l.shared
	}
	lim, _ := l.windows.GetOrSet(key, l.newWindow)
	return lim
}

// Allow implements Limiter. Rejected requests are told to retry at the start of the next window.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.window(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	return false, now.Truncate(l.rate.Duration).Add(l.rate.Duration).Sub(now), nil
}
