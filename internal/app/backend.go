package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/foodcourt/db"
	"github.com/xenking/foodcourt/internal/domain/auth"
	"github.com/xenking/foodcourt/internal/domain/coupon"
	"github.com/xenking/foodcourt/internal/domain/customer"
	"github.com/xenking/foodcourt/internal/domain/order"
	"github.com/xenking/foodcourt/internal/domain/product"
	"github.com/xenking/foodcourt/internal/domain/promotion"
	"github.com/xenking/foodcourt/internal/seed"
	"github.com/xenking/foodcourt/internal/storage/memory"
	"github.com/xenking/foodcourt/internal/storage/postgres"
	"github.com/xenking/foodcourt/pkg/health"
)

// backend is the set of repositories the services run against.
type backend struct {
	products   product.Repository
	combos     product.ComboRepository
	promotions promotion.Repository
	ledger     promotion.Ledger
	usage      promotion.UsageCounter
	coupons    coupon.Repository
	vouchers   coupon.VoucherRepository
	customers  customer.Repository
	orders     order.Repository
	tx         order.Transactor
	apikeys    auth.Repository
	close      func()
}

func newPostgresBackend(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	lg.Info("Using postgres backend")

	products := postgres.NewProductRepository(pool)
	promos := postgres.NewPromotionRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	return &backend{
		products:   products,
		combos:     products,
		promotions: promos,
		ledger:     promos,
		usage:      orders,
		coupons:    coupons,
		vouchers:   coupons,
		customers:  postgres.NewCustomerRepository(pool),
		orders:     orders,
		tx:         postgres.NewTransactor(pool),
		apikeys:    postgres.NewAPIKeyRepository(pool),
		close:      pool.Close,
	}, nil
}

// newMemoryBackend serves the embedded seed data. State is lost on restart.
func newMemoryBackend(lg *zap.Logger, cfg *Config) (*backend, error) {
	data, err := seed.Parse(db.SeedMenu)
	if err != nil {
		return nil, errors.Wrap(err, "parse seed")
	}

	var keys []auth.APIKeyInfo
	if cfg.AdminAPIKey != "" {
		keys = append(keys, auth.APIKeyInfo{
			ID:      "admin",
			Name:    "admin",
			KeyHash: auth.HashKey(cfg.AdminAPIKey, cfg.APIKeyPepper),
			Scopes:  []string{auth.ScopeVouchers},
		})
	}
	lg.Warn("No database configured, serving seed data from memory",
		zap.Int("products", len(data.Products)),
		zap.Int("promotions", len(data.Promotions)),
		zap.Bool("admin_key", len(keys) > 0),
	)

	catalog := memory.NewCatalog(data.Products, data.Combos)
	promos := memory.NewPromotionStore(data.Promotions...)
	orders := memory.NewOrderStore()
	coupons := memory.NewCouponStore(data.Coupons...)
	return &backend{
		products:   catalog,
		combos:     catalog,
		promotions: promos,
		ledger:     promos,
		usage:      orders,
		coupons:    coupons,
		vouchers:   coupons,
		customers:  memory.NewCustomers(data.Customers...),
		orders:     orders,
		tx:         memory.Transactor{},
		apikeys:    memory.NewAPIKeys(keys...),
		close:      func() {},
	}, nil
}
