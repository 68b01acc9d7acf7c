package menu

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTTL is how long an anonymous menu may be served without rebuilding.
const DefaultTTL = 60 * time.Second

// Cache stores the anonymous menu view. Staleness is decided against the
// caller's now, never a background timer.
type Cache interface {
	Load(ctx context.Context, now time.Time) (*View, bool)
	Store(ctx context.Context, v *View, now time.Time)
}

type cacheEntry struct {
	view      *View
	expiresAt time.Time
}

func (e *cacheEntry) fresh(now time.Time) bool {
	return e != nil && now.Before(e.expiresAt)
}

// MemoryCache is a single-value process-local Cache. Concurrent rebuilds
// are harmless: the last Store wins.
type MemoryCache struct {
	ttl   time.Duration
	entry atomic.Pointer[cacheEntry]
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns a MemoryCache; a non-positive ttl uses DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl}
}

// Load returns the cached view if it is still fresh at now.
func (c *MemoryCache) Load(_ context.Context, now time.Time) (*View, bool) {
	e := c.entry.Load()
	if !e.fresh(now) {
		return nil, false
	}
	return e.view, true
}

// Store replaces the cached view.
func (c *MemoryCache) Store(_ context.Context, v *View, now time.Time) {
	c.entry.Store(&cacheEntry{view: v, expiresAt: now.Add(c.ttl)})
}

type instrumentedCache struct {
	next    Cache
	lookups metric.Int64Counter
}

// InstrumentCache counts cache lookups by result.
func InstrumentCache(next Cache, meter metric.Meter) (Cache, error) {
	lookups, err := meter.Int64Counter("menu.cache.lookups",
		metric.WithDescription("Anonymous menu cache lookups"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create menu.cache.lookups counter")
	}
	return &instrumentedCache{next: next, lookups: lookups}, nil
}

func (c *instrumentedCache) Load(ctx context.Context, now time.Time) (*View, bool) {
	v, ok := c.next.Load(ctx, now)
	result := "miss"
	if ok {
		result = "hit"
	}
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return v, ok
}

func (c *instrumentedCache) Store(ctx context.Context, v *View, now time.Time) {
	c.next.Store(ctx, v, now)
}
