package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcourt/internal/domain/coupon"
	"github.com/xenking/foodcourt/internal/domain/order"
	"github.com/xenking/foodcourt/internal/domain/promotion"
	"github.com/xenking/foodcourt/internal/domain/rule"
	"github.com/xenking/foodcourt/internal/domain/shipping"
	"github.com/xenking/foodcourt/internal/handler"
	"github.com/xenking/foodcourt/internal/jobs"
	"github.com/xenking/foodcourt/internal/menu"
	"github.com/xenking/foodcourt/internal/storage/redis"
	"github.com/xenking/foodcourt/pkg/health"
	"github.com/xenking/foodcourt/pkg/httpmiddleware"
)

const serviceName = "foodcourt-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var (
		b   *backend
		err error
	)
	if cfg.DatabaseURL != "" {
		b, err = newPostgresBackend(ctx, lg, cfg, healthSvc)
	} else {
		b, err = newMemoryBackend(lg, cfg)
	}
	if err != nil {
		return err
	}
	defer b.close()

	meter := m.MeterProvider().Meter(serviceName)
	tracer := m.TracerProvider().Tracer(serviceName)

	ledger, err := promotion.InstrumentLedger(b.ledger, meter)
	if err != nil {
		return errors.Wrap(err, "instrument ledger")
	}

	var cache menu.Cache = menu.NewMemoryCache(cfg.MenuCache.TTL)
	if cfg.MenuCache.Backend == "redis" {
		client, err := redis.NewClient(ctx, cfg.MenuCache.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		cache = redis.NewMenuCache(client, cfg.MenuCache.TTL)
	}
	cache, err = menu.InstrumentCache(cache, meter)
	if err != nil {
		return errors.Wrap(err, "instrument menu cache")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	store := shipping.Point{Lat: cfg.Store.Lat, Lng: cfg.Store.Lng}
	couponService := coupon.NewService(b.coupons, b.vouchers, b.customers, rule.NewEvaluator(lg.Named("rules")))
	orderService := order.NewService(order.Deps{
		Products:   b.products,
		Combos:     b.combos,
		Promotions: b.promotions,
		Ledger:     ledger,
		Usage:      b.usage,
		Coupons:    couponService,
		Orders:     b.orders,
		Tx:         b.tx,
		Distance:   shipping.Haversine{},
		Store:      store,
	}, order.WithTracer(tracer))
	menuService := menu.NewService(menu.Deps{
		Products:     b.products,
		Combos:       b.combos,
		Promotions:   b.promotions,
		Usage:        b.usage,
		Cache:        cache,
		ImageBaseURL: cfg.ImageBaseURL,
	}, menu.WithTracer(tracer))

	scheduler, err := jobs.NewScheduler()
	if err != nil {
		return err
	}
	if err := scheduler.AddVoucherExpiry(ctx, couponService); err != nil {
		return err
	}
	scheduler.Start()

	h := handler.New(handler.Deps{
		Menu:     menuService,
		Orders:   orderService,
		Coupons:  couponService,
		Auth:     handler.NewAuthenticator([]byte(cfg.JWTSecret), b.apikeys, cfg.APIKeyPepper),
		Distance: shipping.Haversine{},
		Store:    store,
	})

	// Instrumentation runs inside chi so the route pattern is resolved.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := scheduler.Shutdown(); err != nil {
			lg.Error("Scheduler shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
