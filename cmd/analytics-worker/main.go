package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/farmfresh/marketplace-backend/internal/analytics/router"
	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	"github.com/farmfresh/marketplace-backend/internal/analytics/worker"
	"github.com/farmfresh/marketplace-backend/internal/analytics/writer"
	"github.com/farmfresh/marketplace-backend/pkg/bigquery"
	"github.com/farmfresh/marketplace-backend/pkg/config"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/idempotency"
	"github.com/farmfresh/marketplace-backend/pkg/pubsub"
	"github.com/farmfresh/marketplace-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.ModeSubscriber, logg)
	requireResource(ctx, logg, "pubsub", err)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)

	defer func() {
		closeErr := multierr.Combine(
			bqClient.Close(),
			pubsubClient.Close(),
			redisClient.Close(),
		)
		if closeErr != nil {
			logg.Error(ctx, "failed to close clients", closeErr)
		}
	}()

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "orders subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	requireResource(ctx, logg, "sales facts table", bqClient.EnsureTable(
		ctx, bqClient.SalesFactsTable(), types.SalesFactSchema(), types.SalesFactsPartitionField,
	))

	salesWriter, err := writer.New(bqClient, writer.Config{
		SalesFactsTable: bqClient.SalesFactsTable(),
		BatchSize:       cfg.BigQuery.BatchSize,
	})
	requireResource(ctx, logg, "sales fact writer", err)

	routingHandler, err := router.NewRouter(salesWriter, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	service, err := worker.NewService(subscription, routingHandler, manager, jobMetrics, logg)
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "analytics worker ready")

	runErr := service.Run(runCtx)
	if err := salesWriter.Flush(context.Background()); err != nil {
		logg.Error(runCtx, "failed to flush buffered sales facts", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", runErr)
		os.Exit(1)
	}
	logg.Info(runCtx, "analytics worker stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
