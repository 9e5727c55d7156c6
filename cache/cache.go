// Package cache memoizes computations per graph version.
//
// Entries carry the graph version they were computed at; a lookup at any
// other version is a miss. Concurrent misses on one key share a single
// computation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/metrics"
)

const DefaultCapacity = 10_000

type entry[V any] struct {
	value     V
	version   uint64
	expiresAt time.Time // zero means no expiry
}

// Cache is a bounded, version-gated cache of immutable values.
type Cache[V any] struct {
	name    string
	store   *ristretto.Cache[string, *entry[V]]
	group   singleflight.Group
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type config struct {
	name     string
	capacity int64
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*config) error

// WithName labels the cache in logs and metrics.
func WithName(name string) Option {
	return func(c *config) error {
		c.name = name
		return nil
	}
}

// WithCapacity bounds the number of entries.
func WithCapacity(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
		}
		c.capacity = int64(n)
		return nil
	}
}

// WithTTL expires entries after d. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return fmt.Errorf("%w: ttl must not be negative", ErrInvalidConfig)
		}
		c.ttl = d
		return nil
	}
}

// WithComputeTimeout bounds each shared computation started by GetOrCompute.
// Zero leaves computations bounded only by fn itself.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return fmt.Errorf("%w: compute timeout must not be negative", ErrInvalidConfig)
		}
		c.timeout = d
		return nil
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *config) error {
		if now == nil {
			return fmt.Errorf("%w: clock is nil", ErrInvalidConfig)
		}
		c.now = now
		return nil
	}
}

// WithMetrics records lookups under the cache name.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a cache.
func New[V any](opts ...Option) (*Cache[V], error) {
	cfg := &config{
		name:     "cache",
		capacity: DefaultCapacity,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, *entry[V]]{
		NumCounters:        cfg.capacity * 10,
		MaxCost:            cfg.capacity,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", cfg.name, err)
	}

	return &Cache[V]{
		name:    cfg.name,
		store:   store,
		ttl:     cfg.ttl,
		timeout: cfg.timeout,
		now:     cfg.now,
		metrics: cfg.metrics,
		logger:  cfg.logger.With("component", "cache", "cache", cfg.name),
	}, nil
}

// Get returns the value stored under key for version.
// Entries from another version or past their TTL are misses.
func (c *Cache[V]) Get(key string, version uint64) (V, bool) {
	var zero V
	e, ok := c.store.Get(key)
	if !ok || e == nil {
		c.metrics.RecordCacheLookup(c.name, "miss")
		return zero, false
	}
	if e.version != version {
		c.metrics.RecordCacheLookup(c.name, "stale")
		c.logger.Debug("version mismatch", "key", key, "entry_version", e.version, "version", version)
		if e.version < version {
			c.store.Del(key)
		}
		return zero, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.metrics.RecordCacheLookup(c.name, "expired")
		c.store.Del(key)
		return zero, false
	}
	c.metrics.RecordCacheLookup(c.name, "hit")
	return e.value, true
}

// Set stores value under key for version, replacing any previous entry.
func (c *Cache[V]) Set(key string, version uint64, value V) {
	e := &entry[V]{value: value, version: version}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.store.SetWithTTL(key, e, 1, c.ttl)
	c.store.Wait()
}

// ComputeFunc produces a value for GetOrCompute and reports whether the value
// may be stored. Values that must not outlive the computation, such as
// incomplete results, return store == false and are handed to the waiting
// callers only.
type ComputeFunc[V any] func(ctx context.Context) (value V, store bool, err error)

// GetOrCompute returns the cached value or runs fn once for all concurrent
// callers of the same key and version. Errors are not cached. The boolean
// reports whether the value was already cached.
//
// fn runs detached from the cancellation of the caller that started it, bounded
// by the compute timeout instead, so a caller that gives up never fails the
// callers sharing its computation. A caller whose own context is still live
// when a shared computation ends with a context error starts a fresh one once.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, version uint64, fn ComputeFunc[V]) (V, bool, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if v, ok := c.Get(key, version); ok {
		return v, true, nil
	}

	flightKey := key + "@" + strconv.FormatUint(version, 10)
	for attempt := 0; ; attempt++ {
		ch := c.group.DoChan(flightKey, func() (any, error) {
			if v, ok := c.Get(key, version); ok {
				return v, nil
			}
			fctx, cancel := c.detach(ctx)
			defer cancel()
			v, store, err := fn(fctx)
			if err != nil {
				return nil, err
			}
			if store {
				c.Set(key, version, v)
			}
			return v, nil
		})

		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if attempt == 0 && isContextError(res.Err) && ctx.Err() == nil {
					c.logger.Debug("shared computation ended early, retrying", "key", key, "error", res.Err)
					continue
				}
				return zero, false, res.Err
			}
			v, ok := res.Val.(V)
			if !ok {
				return zero, false, fmt.Errorf("%w: %s holds %T", core.ErrCacheInconsistency, c.name, res.Val)
			}
			return v, false, nil
		}
	}
}

// detach keeps ctx's values but not its cancellation.
func (c *Cache[V]) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.store.Clear()
}

// Close releases the cache's background goroutines.
func (c *Cache[V]) Close() {
	c.store.Close()
}
