package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/farmfresh/marketplace-backend/api/routes"
	"github.com/farmfresh/marketplace-backend/internal/analytics"
	"github.com/farmfresh/marketplace-backend/internal/analytics/query"
	"github.com/farmfresh/marketplace-backend/internal/cart"
	"github.com/farmfresh/marketplace-backend/internal/catalog"
	"github.com/farmfresh/marketplace-backend/internal/orders"
	"github.com/farmfresh/marketplace-backend/internal/wishlist"
	"github.com/farmfresh/marketplace-backend/pkg/config"
	"github.com/farmfresh/marketplace-backend/pkg/db"
	"github.com/farmfresh/marketplace-backend/pkg/locks"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
	"github.com/farmfresh/marketplace-backend/pkg/migrate"
	"github.com/farmfresh/marketplace-backend/pkg/outbox"
	"github.com/farmfresh/marketplace-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	loc, err := cfg.Analytics.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid analytics timezone", err)
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	commerceMetrics := metrics.NewCommerceMetrics(registry)

	locker, err := newLocker(cfg.Locks, redisClient, commerceMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create locker", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	catalogRepo := catalog.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)

	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:    cartRepo,
		Catalog: catalogRepo,
		Tx:      dbClient,
		Locker:  locker,
		Metrics: commerceMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	wishlistService, err := wishlist.NewService(wishlist.ServiceParams{
		WishlistRepo: wishlist.NewRepository(gormDB),
		Catalog:      catalogRepo,
		Cart:         cartService,
		Tx:           dbClient,
		Locker:       locker,
		Metrics:      commerceMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wishlist service", err)
		os.Exit(1)
	}

	notifier, err := orders.NewOutboxNotifier(dbClient, outbox.NewService(outbox.NewRepository(gormDB), logg))
	if err != nil {
		logg.Error(context.Background(), "failed to create order notifier", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(gormDB),
		Cart:     cartRepo,
		Catalog:  catalogRepo,
		Tx:       dbClient,
		Locker:   locker,
		Notifier: notifier,
		Metrics:  commerceMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(analytics.ServiceParams{
		Sales:             query.NewRepository(gormDB),
		Catalog:           catalogRepo,
		Location:          loc,
		LowStockThreshold: cfg.Analytics.LowStockThreshold,
		MaxWindowDays:     cfg.Analytics.MaxWindowDays,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     id,
		"lock_backend": cfg.Locks.Backend,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:        dbClient,
			Redis:     redisClient,
			Gatherer:  registry,
			Cart:      cartService,
			Wishlist:  wishlistService,
			Orders:    ordersService,
			Analytics: analyticsService,
			Location:  loc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func newLocker(cfg config.LockConfig, redisClient *redis.Client, observer locks.WaitObserver, logg *logger.Logger) (locks.Locker, error) {
	if !cfg.UsesRedis() {
		return locks.NewLocalLocker(observer), nil
	}
	return locks.NewRedisLocker(redisClient, locks.RedisOptions{
		TTL:           cfg.TTL,
		RetryInterval: cfg.RetryInterval,
		WaitTimeout:   cfg.WaitTimeout,
		Observer:      observer,
		Logger:        logg,
	})
}
