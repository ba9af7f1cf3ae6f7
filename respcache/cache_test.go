/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type weather struct {
	Temp int `json:"temp"`
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testMetrics struct {
	Amount      int
	Hits        int
	Misses      int
	Evictions   int
	Expirations int
}

func assertMetrics(t *testing.T, want testMetrics, pm *PrometheusMetrics) {
	t.Helper()
	assert.Equal(t, want.Amount, int(testutil.ToFloat64(pm.EntriesAmount)), "entries amount")
	assert.Equal(t, want.Hits, int(testutil.ToFloat64(pm.HitsTotal)), "hits")
	assert.Equal(t, want.Misses, int(testutil.ToFloat64(pm.MissesTotal)), "misses")
	assert.Equal(t, want.Evictions, int(testutil.ToFloat64(pm.EvictionsTotal)), "evictions")
	assert.Equal(t, want.Expirations, int(testutil.ToFloat64(pm.ExpirationsTotal)), "expirations")
}

func TestNew(t *testing.T) {
	_, err := New[string, weather](0, nil)
	require.EqualError(t, err, "maxEntries must be greater than 0")

	_, err = NewWithOpts[string, weather](10, nil, Options[string, weather]{DefaultTTL: -time.Second})
	require.EqualError(t, err, "defaultTTL must be greater or equal to 0 (no expiration)")

	cache, err := New[string, weather](10, nil)
	require.NoError(t, err)
	require.Equal(t, 0, cache.Len())
}

func TestCache_TTL(t *testing.T) {
	clock := newManualClock()
	metrics := NewPrometheusMetrics()
	cache, err := NewWithOpts[string, weather](100, metrics, Options[string, weather]{Clock: clock})
	require.NoError(t, err)

	cache.SetWithTTL("weather:paris", weather{Temp: 18}, 5*time.Second)

	val, found := cache.Get("weather:paris")
	require.True(t, found)
	require.Equal(t, weather{Temp: 18}, val)

	clock.Advance(6 * time.Second)
	_, found = cache.Get("weather:paris")
	require.False(t, found)
	require.Equal(t, 0, cache.Len())

	assertMetrics(t, testMetrics{Hits: 1, Misses: 1, Expirations: 1}, metrics)
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := newManualClock()
	cache, err := NewWithOpts[string, weather](100, nil, Options[string, weather]{DefaultTTL: time.Minute, Clock: clock})
	require.NoError(t, err)

	cache.Set("weather:rome", weather{Temp: 25})
	cache.SetWithTTL("weather:oslo", weather{Temp: 3}, 0)

	clock.Advance(time.Minute)
	_, found := cache.GetWithOpts("weather:rome", GetOpts{NoResetTTL: true})
	require.True(t, found, "entry exactly at its TTL is still fresh")

	clock.Advance(time.Second)
	_, found = cache.Get("weather:rome")
	require.False(t, found)

	clock.Advance(24 * time.Hour)
	_, found = cache.Get("weather:oslo")
	require.True(t, found, "entry with zero TTL never expires")
}

func TestCache_ResetTTLOnAccess(t *testing.T) {
	t.Run("age is reset by reads by default", func(t *testing.T) {
		clock := newManualClock()
		cache, err := NewWithOpts[string, weather](100, nil, Options[string, weather]{Clock: clock})
		require.NoError(t, err)

		cache.SetWithTTL("weather:paris", weather{Temp: 18}, 5*time.Second)
		for i := 0; i < 3; i++ {
			clock.Advance(4 * time.Second)
			_, found := cache.Get("weather:paris")
			require.True(t, found)
		}
	})

	t.Run("read may opt out of reset", func(t *testing.T) {
		clock := newManualClock()
		cache, err := NewWithOpts[string, weather](100, nil, Options[string, weather]{Clock: clock})
		require.NoError(t, err)

		cache.SetWithTTL("weather:paris", weather{Temp: 18}, 5*time.Second)
		clock.Advance(4 * time.Second)
		_, found := cache.GetWithOpts("weather:paris", GetOpts{NoResetTTL: true})
		require.True(t, found)
		clock.Advance(4 * time.Second)
		_, found = cache.Get("weather:paris")
		require.False(t, found)
	})

	t.Run("reset disabled for the whole cache", func(t *testing.T) {
		clock := newManualClock()
		cache, err := NewWithOpts[string, weather](100, nil, Options[string, weather]{Clock: clock, NoResetTTLOnAccess: true})
		require.NoError(t, err)

		cache.SetWithTTL("weather:paris", weather{Temp: 18}, 5*time.Second)
		clock.Advance(4 * time.Second)
		_, found := cache.Get("weather:paris")
		require.True(t, found)
		clock.Advance(4 * time.Second)
		_, found = cache.Get("weather:paris")
		require.False(t, found)
	})
}

func TestCache_Set_ReplacesExisting(t *testing.T) {
	clock := newManualClock()
	cache, err := NewWithOpts[string, weather](100, nil, Options[string, weather]{Clock: clock})
	require.NoError(t, err)

	cache.SetWithTTL("weather:paris", weather{Temp: 18}, 5*time.Second)
	clock.Advance(4 * time.Second)
	cache.SetWithTTL("weather:paris", weather{Temp: 20}, 5*time.Second)
	clock.Advance(4 * time.Second)

	val, found := cache.GetWithOpts("weather:paris", GetOpts{NoResetTTL: true})
	require.True(t, found)
	require.Equal(t, weather{Temp: 20}, val)
	require.Equal(t, 1, cache.Len())
}

func TestCache_LRUEviction(t *testing.T) {
	metrics := NewPrometheusMetrics()
	cache, err := New[string, weather](2, metrics)
	require.NoError(t, err)

	cache.Set("weather:paris", weather{Temp: 18})
	cache.Set("weather:rome", weather{Temp: 25})
	_, found := cache.Get("weather:paris") // rome becomes the least recently used
	require.True(t, found)
	cache.Set("weather:oslo", weather{Temp: 3})

	require.Equal(t, 2, cache.Len())
	_, found = cache.Get("weather:rome")
	require.False(t, found)
	_, found = cache.Get("weather:paris")
	require.True(t, found)
	_, found = cache.Get("weather:oslo")
	require.True(t, found)

	assertMetrics(t, testMetrics{Amount: 2, Hits: 3, Misses: 1, Evictions: 1}, metrics)
}

func TestCache_DeleteAndClear(t *testing.T) {
	metrics := NewPrometheusMetrics()
	cache, err := New[string, weather](10, metrics)
	require.NoError(t, err)

	cache.Set("weather:paris", weather{Temp: 18})
	cache.Set("weather:rome", weather{Temp: 25})
	cache.Set("weather:oslo", weather{Temp: 3})

	require.True(t, cache.Delete("weather:rome"))
	require.False(t, cache.Delete("weather:rome"))
	require.False(t, cache.Delete("weather:berlin"))
	require.Equal(t, Stats{Size: 2, CalculatedSize: 2}, cache.Stats())

	cache.Clear()
	require.Equal(t, Stats{}, cache.Stats())
	_, found := cache.Get("weather:paris")
	require.False(t, found)

	assertMetrics(t, testMetrics{Misses: 1}, metrics)
}

func TestCache_Stats(t *testing.T) {
	cache, err := NewWithOpts[string, []byte](10, nil, Options[string, []byte]{
		SizeCalculation: func(key string, value []byte) int64 { return int64(len(key) + len(value)) },
	})
	require.NoError(t, err)

	require.Equal(t, Stats{}, cache.Stats())

	cache.Set("a", []byte("1234"))
	cache.Set("bb", []byte("12"))
	require.Equal(t, Stats{Size: 2, CalculatedSize: 9}, cache.Stats())

	cache.Set("a", []byte("1"))
	require.Equal(t, Stats{Size: 2, CalculatedSize: 6}, cache.Stats())

	cache.Delete("bb")
	require.Equal(t, Stats{Size: 1, CalculatedSize: 2}, cache.Stats())
}

func TestCache_Resize(t *testing.T) {
	metrics := NewPrometheusMetrics()
	cache, err := New[int, int](5, metrics)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		cache.Set(i, i*i)
	}
	require.Equal(t, 0, cache.Resize(0))
	require.Equal(t, 0, cache.Resize(-1))
	require.Equal(t, 5, cache.Len(), "non-positive size must keep the current bound")
	require.Equal(t, 3, cache.Resize(2))
	require.Equal(t, 2, cache.Len())
	for _, key := range []int{3, 4} {
		val, found := cache.Get(key)
		require.True(t, found)
		require.Equal(t, key*key, val)
	}
	assertMetrics(t, testMetrics{Amount: 2, Hits: 2, Evictions: 3}, metrics)
}

func TestCache_Cleanup(t *testing.T) {
	clock := newManualClock()
	metrics := NewPrometheusMetrics()
	cache, err := NewWithOpts[string, weather](10, metrics, Options[string, weather]{Clock: clock})
	require.NoError(t, err)

	cache.SetWithTTL("weather:paris", weather{Temp: 18}, 5*time.Second)
	cache.SetWithTTL("weather:rome", weather{Temp: 25}, time.Minute)
	cache.SetWithTTL("weather:oslo", weather{Temp: 3}, 0)

	clock.Advance(10 * time.Second)
	require.Equal(t, 1, cache.Cleanup())
	require.Equal(t, 2, cache.Len())

	clock.Advance(time.Hour)
	require.Equal(t, 1, cache.Cleanup())
	require.Equal(t, 0, cache.Cleanup())
	require.Equal(t, 1, cache.Len())

	assertMetrics(t, testMetrics{Amount: 1, Expirations: 2}, metrics)
}

func TestCache_RunPeriodicCleanup(t *testing.T) {
	cache, err := New[string, weather](10, nil)
	require.NoError(t, err)
	cache.SetWithTTL("weather:paris", weather{Temp: 18}, time.Millisecond)
	cache.SetWithTTL("weather:rome", weather{Temp: 25}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cache.RunPeriodicCleanup(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestCache_GetOrLoad(t *testing.T) {
	t.Run("loads once and then serves from cache", func(t *testing.T) {
		cache, err := New[string, weather](10, nil)
		require.NoError(t, err)

		var calls int
		loader := func(ctx context.Context, key string) (weather, error) {
			calls++
			return weather{Temp: 18}, nil
		}

		val, cached, err := cache.GetOrLoad(context.Background(), "weather:paris", loader)
		require.NoError(t, err)
		require.False(t, cached)
		require.Equal(t, weather{Temp: 18}, val)

		val, cached, err = cache.GetOrLoad(context.Background(), "weather:paris", loader)
		require.NoError(t, err)
		require.True(t, cached)
		require.Equal(t, weather{Temp: 18}, val)
		require.Equal(t, 1, calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		cache, err := New[string, weather](10, nil)
		require.NoError(t, err)

		errUpstream := errors.New("upstream is down")
		_, _, err = cache.GetOrLoad(context.Background(), "weather:paris", func(context.Context, string) (weather, error) {
			return weather{}, errUpstream
		})
		require.ErrorIs(t, err, errUpstream)
		require.Equal(t, 0, cache.Len())
	})

	t.Run("concurrent loads of the same key are collapsed", func(t *testing.T) {
		cache, err := New[string, weather](10, nil)
		require.NoError(t, err)

		calls := atomic.NewInt32(0)
		release := make(chan struct{})
		loader := func(ctx context.Context, key string) (weather, error) {
			calls.Inc()
			<-release
			return weather{Temp: 18}, nil
		}

		const callers = 10
		var wg sync.WaitGroup
		results := make(chan weather, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				val, _, loadErr := cache.GetOrLoad(context.Background(), "weather:paris", loader)
				assert.NoError(t, loadErr)
				results <- val
			}()
		}
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		close(results)

		require.LessOrEqual(t, calls.Load(), int32(2))
		for val := range results {
			require.Equal(t, weather{Temp: 18}, val)
		}
	})

	t.Run("canceled caller does not fail the shared load", func(t *testing.T) {
		cache, err := New[string, weather](10, nil)
		require.NoError(t, err)

		type ctxKey struct{}
		calls := atomic.NewInt32(0)
		release := make(chan struct{})
		loaderCtxErr := make(chan error, 1)
		loader := func(ctx context.Context, key string) (weather, error) {
			calls.Inc()
			<-release
			loaderCtxErr <- ctx.Err()
			if ctx.Value(ctxKey{}) != "first" {
				return weather{}, errors.New("context values are lost")
			}
			return weather{Temp: 18}, nil
		}

		firstCtx, cancelFirst := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "first"))
		firstErr := make(chan error, 1)
		go func() {
			_, _, loadErr := cache.GetOrLoad(firstCtx, "weather:paris", loader)
			firstErr <- loadErr
		}()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

		type result struct {
			val weather
			err error
		}
		secondRes := make(chan result, 1)
		go func() {
			val, _, loadErr := cache.GetOrLoad(context.Background(), "weather:paris", loader)
			secondRes <- result{val, loadErr}
		}()
		time.Sleep(20 * time.Millisecond)

		cancelFirst()
		select {
		case loadErr := <-firstErr:
			require.ErrorIs(t, loadErr, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("canceled caller must stop waiting")
		}

		close(release)
		res := <-secondRes
		require.NoError(t, res.err)
		require.Equal(t, weather{Temp: 18}, res.val)
		require.NoError(t, <-loaderCtxErr)
		require.Equal(t, int32(1), calls.Load())

		val, found := cache.Get("weather:paris")
		require.True(t, found)
		require.Equal(t, weather{Temp: 18}, val)
	})

	t.Run("loader panic is returned as error", func(t *testing.T) {
		cache, err := New[string, weather](10, nil)
		require.NoError(t, err)
		_, _, err = cache.GetOrLoad(context.Background(), "weather:paris", func(context.Context, string) (weather, error) {
			panic("boom")
		})
		require.ErrorContains(t, err, "loader panicked: boom")
		require.Equal(t, 0, cache.Len())
	})
}

func TestCache_GetOrLoad_LoadKey(t *testing.T) {
	loader := func(ctx context.Context, key int) (int, error) { return key * key, nil }

	cache, err := New[int, int](10, nil)
	require.NoError(t, err)
	_, _, err = cache.GetOrLoad(context.Background(), 3, loader)
	require.ErrorIs(t, err, ErrLoadKeyRequired)

	cache, err = NewWithOpts[int, int](10, nil, Options[int, int]{LoadKey: strconv.Itoa})
	require.NoError(t, err)
	val, cached, err := cache.GetOrLoad(context.Background(), 3, loader)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, 9, val)

	type resourceKey string
	namedCache, err := New[resourceKey, int](10, nil)
	require.NoError(t, err)
	val, _, err = namedCache.GetOrLoad(context.Background(), "geo:rome",
		func(context.Context, resourceKey) (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, val)
	require.Equal(t, "geo:rome", namedCache.loadKey("geo:rome"))
}

func TestCache_Concurrency(t *testing.T) {
	cache, err := New[int, int](50, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := (g*1000 + i) % 100
				cache.Set(key, i)
				cache.Get(key)
				if i%10 == 0 {
					cache.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()
	require.LessOrEqual(t, cache.Len(), 50)
	require.Equal(t, int64(cache.Len()), cache.Stats().CalculatedSize)
}

func TestCache_GetOrSet(t *testing.T) {
	metrics := NewPrometheusMetrics()
	cache, err := New[string, []string](10, metrics)
	require.NoError(t, err)

	val, exists := cache.GetOrSet("geo:paris", func() []string { return []string{"48.85", "2.35"} })
	require.False(t, exists)
	require.Equal(t, []string{"48.85", "2.35"}, val)

	val, exists = cache.GetOrSet("geo:paris", func() []string {
		t.Fatal("value provider must not be called for existing key")
		return nil
	})
	require.True(t, exists)
	require.Equal(t, []string{"48.85", "2.35"}, val)

	assertMetrics(t, testMetrics{Amount: 1, Hits: 1, Misses: 1}, metrics)
}

func TestPrometheusMetrics_MustCurryWith(t *testing.T) {
	pm := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{CurriedLabelNames: []string{"cache"}})
	lookups, err := New[string, weather](10, pm.MustCurryWith(prometheus.Labels{"cache": "lookups"}))
	require.NoError(t, err)
	limiters, err := New[string, weather](10, pm.MustCurryWith(prometheus.Labels{"cache": "limiters"}))
	require.NoError(t, err)

	lookups.Set("weather:paris", weather{Temp: 18})
	_, ok := lookups.Get("weather:paris")
	require.True(t, ok)
	_, ok = limiters.Get("203.0.113.9")
	require.False(t, ok)

	require.Equal(t, 1, int(testutil.ToFloat64(pm.HitsTotal.WithLabelValues("lookups"))))
	require.Equal(t, 0, int(testutil.ToFloat64(pm.HitsTotal.WithLabelValues("limiters"))))
	require.Equal(t, 1, int(testutil.ToFloat64(pm.MissesTotal.WithLabelValues("limiters"))))
	require.Equal(t, 1, int(testutil.ToFloat64(pm.EntriesAmount.WithLabelValues("lookups"))))
}
