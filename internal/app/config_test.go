package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "memory cache",
			cfg:  Config{JWTSecret: "s", MenuCache: MenuCacheConfig{Backend: "memory"}},
		},
		{
			name: "redis cache",
			cfg:  Config{JWTSecret: "s", MenuCache: MenuCacheConfig{Backend: "redis", RedisURL: "redis://localhost:6379"}},
		},
		{
			name:    "missing secret",
			cfg:     Config{MenuCache: MenuCacheConfig{Backend: "memory"}},
			wantErr: "JWT secret is required",
		},
		{
			name:    "redis without url",
			cfg:     Config{JWTSecret: "s", MenuCache: MenuCacheConfig{Backend: "redis"}},
			wantErr: "redis menu cache requires",
		},
		{
			name:    "unknown backend",
			cfg:     Config{JWTSecret: "s", MenuCache: MenuCacheConfig{Backend: "memcached"}},
			wantErr: `unknown menu cache backend "memcached"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db")
	t.Setenv("REDIS_URL", "redis://cache")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://db", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache", cfg.MenuCache.RedisURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	// Explicit settings win.
	cfg = Config{Addr: "127.0.0.1:8081", DatabaseURL: "postgres://explicit"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:8081", cfg.Addr)
}
