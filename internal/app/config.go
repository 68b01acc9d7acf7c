package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (FOODCOURT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL; empty serves the embedded seed data from memory" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (FOODCOURT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	JWTSecret    string `usage:"HS256 secret for customer bearer tokens" flag:"jwt-secret"`
	AdminAPIKey  string `usage:"Operator key registered at startup when running without a database" flag:"admin-api-key"`
	MenuCache    MenuCacheConfig
	Store        StoreConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// MenuCacheConfig selects where the anonymous menu view is cached.
type MenuCacheConfig struct {
	Backend  string        `default:"memory" usage:"Menu cache backend: memory or redis"`
	TTL      time.Duration `default:"60s" usage:"Anonymous menu cache lifetime"`
	RedisURL string        `usage:"Redis URL for the redis backend (FOODCOURT_MENU_CACHE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
}

// StoreConfig is the kitchen location distances are measured from.
type StoreConfig struct {
	Lat float64 `default:"10.7769" usage:"Store latitude"`
	Lng float64 `default:"106.7009" usage:"Store longitude"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FOODCOURT",
		Files:     []string{"config.yaml", "/etc/foodcourt/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT secret is required: set FOODCOURT_JWT_SECRET")
	}
	switch c.MenuCache.Backend {
	case "memory":
	case "redis":
		if c.MenuCache.RedisURL == "" {
			return errors.New("redis menu cache requires FOODCOURT_MENU_CACHE_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown menu cache backend %q", c.MenuCache.Backend)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's FOODCOURT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.MenuCache.RedisURL == "" {
		c.MenuCache.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
