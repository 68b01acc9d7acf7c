// Package redis provides a shared menu cache for multi-instance deployments.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/foodcourt/internal/menu"
)

const defaultKey = "foodcourt:menu:anonymous"

// NewClient connects to the redis server at url (redis://...) and verifies
// it answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

type envelope struct {
	ExpiresAt time.Time  `json:"expiresAt"`
	View      *menu.View `json:"view"`
}

// MenuCache shares the anonymous menu between instances. Freshness is
// judged against the caller's clock; the redis TTL only reclaims memory.
// Redis failures are logged and read as a miss.
type MenuCache struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

var _ menu.Cache = (*MenuCache)(nil)

// NewMenuCache returns a MenuCache; a non-positive ttl uses menu.DefaultTTL.
func NewMenuCache(client redis.Cmdable, ttl time.Duration) *MenuCache {
	if ttl <= 0 {
		ttl = menu.DefaultTTL
	}
	return &MenuCache{client: client, key: defaultKey, ttl: ttl}
}

// Load returns the cached view when present and fresh at now.
func (c *MenuCache) Load(ctx context.Context, now time.Time) (*menu.View, bool) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Menu cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		zctx.From(ctx).Warn("Menu cache entry corrupt", zap.Error(err))
		return nil, false
	}
	if e.View == nil || !now.Before(e.ExpiresAt) {
		return nil, false
	}
	return e.View, true
}

// Store writes v with an expiry of now plus the TTL.
func (c *MenuCache) Store(ctx context.Context, v *menu.View, now time.Time) {
	data, err := json.Marshal(envelope{ExpiresAt: now.Add(c.ttl), View: v})
	if err != nil {
		zctx.From(ctx).Warn("Menu cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Menu cache write failed", zap.Error(err))
	}
}
