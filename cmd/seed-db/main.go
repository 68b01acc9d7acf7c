package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodcourt/db"
	"github.com/xenking/foodcourt/internal/domain/auth"
	"github.com/xenking/foodcourt/internal/handler"
	"github.com/xenking/foodcourt/internal/seed"
	"github.com/xenking/foodcourt/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	menuFile     string
	apiKey       string
	apiKeyPepper string
	jwtSecret    string
	tokenTTL     time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.menuFile, "menu-file", "", "menu JSON file; defaults to the embedded db/seed/menu.json")
	flag.StringVar(&opts.apiKey, "api-key", "", "operator API key to seed (or FOODCOURT_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or FOODCOURT_API_KEY_PEPPER env)")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "print demo customer tokens signed with this secret (or FOODCOURT_JWT_SECRET env)")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed demo tokens")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("FOODCOURT_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or FOODCOURT_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("FOODCOURT_API_KEY_PEPPER")
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("FOODCOURT_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	data, err := loadMenu(opts.menuFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting menu",
		slog.Int("products", len(data.Products)),
		slog.Int("combos", len(data.Combos)),
		slog.Int("promotions", len(data.Promotions)),
		slog.Int("customers", len(data.Customers)),
		slog.Int("coupons", len(data.Coupons)),
	)

	if err := postgres.Seed(ctx, pool, data); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	slog.Info("seeding operator API key")

	if err := postgres.UpsertAPIKey(ctx, pool, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(opts.apiKey, opts.apiKeyPepper),
		Name:    "Default operator key",
		Scopes:  []string{auth.ScopeVouchers},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	if opts.jwtSecret != "" {
		return printTokens(data, []byte(opts.jwtSecret), opts.tokenTTL)
	}
	return nil
}

func loadMenu(path string) (*seed.Data, error) {
	raw := db.SeedMenu
	if path != "" {
		slog.Info("reading menu file", slog.String("path", path))

		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read menu file")
		}
		raw = b
	}
	return seed.Parse(raw)
}

// printTokens logs a bearer token per seeded customer for manual testing.
func printTokens(data *seed.Data, secret []byte, ttl time.Duration) error {
	now := time.Now()
	for _, c := range data.Customers {
		tok, err := handler.NewCustomerToken(secret, c.ID, now, ttl)
		if err != nil {
			return errors.Wrapf(err, "token for %s", c.ID)
		}
		slog.Info("demo customer token", slog.String("customer", c.ID), slog.String("token", tok))
	}
	return nil
}
