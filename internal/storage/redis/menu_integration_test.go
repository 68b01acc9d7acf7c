//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/foodcourt/internal/menu"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestMenuCache(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, startRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cache := NewMenuCache(client, time.Minute)
	now := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)

	_, ok := cache.Load(ctx, now)
	assert.False(t, ok, "empty cache")

	view := &menu.View{
		Categories:  []menu.Category{{Name: "Noodle soup", Slug: "noodle-soup"}},
		GeneratedAt: now,
	}
	cache.Store(ctx, view, now)

	got, ok := cache.Load(ctx, now.Add(59*time.Second))
	require.True(t, ok)
	assert.Equal(t, "noodle-soup", got.Categories[0].Slug)
	assert.True(t, now.Equal(got.GeneratedAt))

	_, ok = cache.Load(ctx, now.Add(time.Minute))
	assert.False(t, ok, "stale at exactly ttl")

	// Shared between clients.
	other := NewMenuCache(client, time.Minute)
	_, ok = other.Load(ctx, now.Add(time.Second))
	assert.True(t, ok)
}

func TestMenuCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, startRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(ctx, defaultKey, "not json", time.Minute).Err())
	_, ok := NewMenuCache(client, 0).Load(ctx, time.Now())
	assert.False(t, ok)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://nope")
	require.Error(t, err)
}
