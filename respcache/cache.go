/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
	ttl      time.Duration
	size     int64
}

func (e *cacheEntry[K, V]) isExpired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) > e.ttl
}

// SizeCalculationFunc computes the size of a single entry. It's used for Stats.CalculatedSize.
type SizeCalculationFunc[K comparable, V any] func(key K, value V) int64

// LoaderFunc loads a value for the key when it's missing in the cache.
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Options represents options for the cache.
type Options[K comparable, V any] struct {
	// DefaultTTL is used by Set and GetOrLoad. Zero means no expiration.
	DefaultTTL time.Duration

	// NoResetTTLOnAccess disables resetting the entry age on every successful read.
	// By default, a read hit makes the entry "fresh" again, so TTL acts as an idle timeout.
	NoResetTTLOnAccess bool

	// SizeCalculation computes the size of each entry. Every entry counts as 1 if not set.
	SizeCalculation SizeCalculationFunc[K, V]

	// Clock is a source of the current time. SystemClock is used if not set.
	Clock Clock

	// LoadKey maps a key to the string that identifies its in-flight load in GetOrLoad.
	// It must be injective. Keys with a string underlying type are used as is when not set,
	// other key types must provide it to use GetOrLoad.
	LoadKey func(key K) string
}

// ErrLoadKeyRequired is returned by GetOrLoad when the cache has non-string keys and no Options.LoadKey.
var ErrLoadKeyRequired = errors.New("load key function is required for non-string cache keys")

// GetOpts represents options for Cache.GetWithOpts.
type GetOpts struct {
	// NoResetTTL keeps the entry age untouched even if the cache resets it on access.
	NoResetTTL bool
}

// Stats is a snapshot of the cache occupancy.
type Stats struct {
	Size           int   `json:"size"`
	CalculatedSize int64 `json:"calculatedSize"`
}

// Cache is a bounded LRU cache with per-entry TTL, lazy expiration and Prometheus metrics.
// It's safe for concurrent use.
type Cache[K comparable, V any] struct {
	maxEntries int

	defaultTTL       time.Duration
	resetTTLOnAccess bool
	sizeCalculation  SizeCalculationFunc[K, V]
	clock            Clock

	mu             sync.Mutex
	lruList        *list.List
	entries        map[K]*list.Element // value is a lruList element
	calculatedSize int64

	loadGroup singleflight.Group
	loadKey   func(key K) string

	metricsCollector MetricsCollector
}

// New creates a new Cache with the provided maximum number of entries and metrics collector.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*Cache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options[K, V]{})
}

// NewWithOpts creates a new Cache with the provided maximum number of entries, metrics collector, and options.
// Metrics collector can be nil, in this case, metrics will be disabled.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options[K, V]) (*Cache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	if opts.SizeCalculation == nil {
		opts.SizeCalculation = func(K, V) int64 { return 1 }
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.LoadKey == nil {
		opts.LoadKey = stringLoadKey[K]()
	}

	return &Cache[K, V]{
		maxEntries:       maxEntries,
		defaultTTL:       opts.DefaultTTL,
		resetTTLOnAccess: !opts.NoResetTTLOnAccess,
		sizeCalculation:  opts.SizeCalculation,
		clock:            opts.Clock,
		loadKey:          opts.LoadKey,
		lruList:          list.New(),
		entries:          make(map[K]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// Get returns a value from the cache by the provided key.
// A missing or expired entry is reported as a miss, the expired one is removed.
func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	return c.GetWithOpts(key, GetOpts{})
}

// GetWithOpts is like Get but allows to opt out of resetting the entry age for this particular read.
func (c *Cache[K, V]) GetWithOpts(key K, opts GetOpts) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key, c.resetTTLOnAccess && !opts.NoResetTTL)
}

// Set stores the value with the default TTL.
// If the cache is full, the least recently used entry is evicted.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores the value with the provided TTL (0 means no expiration).
// An existing entry is replaced and its age starts over.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

func (c *Cache[K, V]) setLocked(key K, value V, ttl time.Duration) {
	size := c.sizeCalculation(key, value)
	now := c.clock.Now()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry[K, V])
		c.calculatedSize += size - entry.size
		elem.Value = &cacheEntry[K, V]{key: key, value: value, storedAt: now, ttl: ttl, size: size}
		c.lruList.MoveToFront(elem)
		return
	}

	evicted := 0
	for len(c.entries) >= c.maxEntries {
		if c.removeOldest() == nil {
			break
		}
		evicted++
	}
	c.entries[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value, storedAt: now, ttl: ttl, size: size})
	c.calculatedSize += size
	c.metricsCollector.SetAmount(len(c.entries))
	if evicted > 0 {
		c.metricsCollector.AddEvictions(evicted)
	}
}

// GetOrSet returns the cached value or stores the one built by valueProvider, atomically.
// The returned flag reports whether the value was already present.
func (c *Cache[K, V]) GetOrSet(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, exists = c.get(key, c.resetTTLOnAccess); exists {
		return value, true
	}
	value = valueProvider()
	c.setLocked(key, value, c.defaultTTL)
	return value, false
}

// GetOrLoad returns a cached value or calls loader and stores its result with the default TTL.
// Concurrent calls for the same key share a single loader call. Loader errors are not cached.
// The returned flag reports whether the value was served from the cache.
//
// The shared load does not depend on the lifetime of any caller: loader gets a context
// with the values of the first caller's ctx but without its cancellation and deadline,
// so it must bound its own duration (e.g. with an HTTP client timeout).
// A caller whose ctx is done stops waiting and gets ctx.Err(), the load goes on for the others.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, loader LoaderFunc[K, V]) (value V, cached bool, err error) {
	return c.GetOrLoadWithTTL(ctx, key, loader, c.defaultTTL)
}

// GetOrLoadWithTTL is like GetOrLoad but stores the loaded value with the provided TTL.
func (c *Cache[K, V]) GetOrLoadWithTTL(
	ctx context.Context, key K, loader LoaderFunc[K, V], ttl time.Duration,
) (value V, cached bool, err error) {
	if value, cached = c.Get(key); cached {
		return value, true, nil
	}
	if c.loadKey == nil {
		return value, false, ErrLoadKeyRequired
	}

	loadCtx := context.WithoutCancel(ctx)
	resCh := c.loadGroup.DoChan(c.loadKey(key), func() (res interface{}, loadErr error) {
		// DoChan re-panics in a separate goroutine where nobody can recover.
		defer func() {
			if p := recover(); p != nil {
				loadErr = fmt.Errorf("loader panicked: %v", p)
			}
		}()
		loaded, loadErr := loader(loadCtx, key)
		if loadErr != nil {
			return nil, loadErr
		}
		c.SetWithTTL(key, loaded, ttl)
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return value, false, ctx.Err()
	case res := <-resCh:
		if res.Err != nil {
			return value, false, res.Err
		}
		value, _ = res.Val.(V)
		return value, false, nil
	}
}

// stringLoadKey returns the identity mapping for keys with a string underlying type and nil otherwise.
func stringLoadKey[K comparable]() func(key K) string {
	if reflect.TypeFor[K]().Kind() != reflect.String {
		return nil
	}
	return func(key K) string {
		if s, ok := any(key).(string); ok {
			return s
		}
		return reflect.ValueOf(key).String()
	}
}

// Delete removes the entry by the provided key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.metricsCollector.SetAmount(len(c.entries))
	return true
}

// Clear removes all entries.
// Removed entries are not counted as evictions.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.lruList.Init()
	c.calculatedSize = 0
	c.metricsCollector.SetAmount(0)
}

// Stats returns the number of entries and their total calculated size.
// Expired entries that were not removed yet are included.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: len(c.entries), CalculatedSize: c.calculatedSize}
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Resize changes the maximum number of entries and returns the number of evicted entries.
// A non-positive size is ignored: the cache keeps its current bound and nothing is evicted.
func (c *Cache[K, V]) Resize(size int) (evicted int) {
	if size <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxEntries = size
	for len(c.entries) > size {
		_ = c.removeOldest()
		evicted++
	}
	if evicted > 0 {
		c.metricsCollector.SetAmount(len(c.entries))
		c.metricsCollector.AddEvictions(evicted)
	}
	return evicted
}

// Cleanup removes all expired entries and returns their number.
func (c *Cache[K, V]) Cleanup() (removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for _, elem := range c.entries {
		if elem.Value.(*cacheEntry[K, V]).isExpired(now) {
			c.removeElement(elem)
			removed++
		}
	}
	if removed > 0 {
		c.metricsCollector.SetAmount(len(c.entries))
		c.metricsCollector.AddExpirations(removed)
	}
	return removed
}

// RunPeriodicCleanup runs a cycle of periodic cleanup of expired entries.
// Entries without expiration time are not affected.
// It's supposed to be run in a separate goroutine.
func (c *Cache[K, V]) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

func (c *Cache[K, V]) get(key K, resetTTL bool) (value V, ok bool) {
	elem, hit := c.entries[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	now := c.clock.Now()
	if entry.isExpired(now) {
		c.removeElement(elem)
		c.metricsCollector.SetAmount(len(c.entries))
		c.metricsCollector.AddExpirations(1)
		c.metricsCollector.IncMisses()
		return value, false
	}
	if resetTTL {
		entry.storedAt = now
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return entry.value, true
}

func (c *Cache[K, V]) removeOldest() *cacheEntry[K, V] {
	elem := c.lruList.Back()
	if elem == nil {
		return nil
	}
	return c.removeElement(elem)
}

func (c *Cache[K, V]) removeElement(elem *list.Element) *cacheEntry[K, V] {
	c.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry[K, V])
	delete(c.entries, entry.key)
	c.calculatedSize -= entry.size
	return entry
}
