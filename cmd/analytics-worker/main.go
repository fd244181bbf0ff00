package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/estore-backend/internal/analytics"
	"github.com/angelmondragon/estore-backend/internal/analytics/writer"
	"github.com/angelmondragon/estore-backend/internal/consumers/worker"
	"github.com/angelmondragon/estore-backend/pkg/bigquery"
	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/estore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/estore-backend/pkg/pubsub"
	"github.com/angelmondragon/estore-backend/pkg/redis"
)

const serviceName = "analytics-worker"

// flushTimeout bounds the final flush once the subscription stops.
const flushTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	boot := logger.New(logger.Options{ServiceName: serviceName})

	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "resource not working: config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

// run wires the analytics consumer and blocks until ctx ends or a component fails.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeQuietly(ctx, logg, "pubsub", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer closeQuietly(ctx, logg, "bigquery", bqClient.Close)

	subscription, err := pubsubClient.Subscriber(ctx, cfg.PubSub.AnalyticsSubscription)
	if err != nil {
		return fmt.Errorf("analytics subscription: %w", err)
	}
	claims, err := idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency guard: %w", err)
	}

	rows, err := writer.New(bqClient, writer.Config{
		CommerceTable: bqClient.CommerceTable(),
		BatchSize:     cfg.BigQuery.BatchSize,
		MaxAttempts:   cfg.BigQuery.InsertAttempts,
	})
	if err != nil {
		return fmt.Errorf("analytics writer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if err := rows.Flush(flushCtx); err != nil {
			logg.Error(flushCtx, "final analytics flush failed", err)
		}
	}()

	sink, err := analytics.NewSink(rows, logg)
	if err != nil {
		return fmt.Errorf("analytics sink: %w", err)
	}
	consumer, err := worker.NewService(analytics.ConsumerName, subscription, sink, claims, logg)
	if err != nil {
		return fmt.Errorf("analytics consumer: %w", err)
	}
	consumer.ValidatePayloads(registry.CurrentSchemas())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return consumer.Run(groupCtx)
	})
	if cfg.BigQuery.BatchSize > 1 && cfg.BigQuery.FlushInterval > 0 {
		group.Go(func() error {
			return flushEvery(groupCtx, logg, rows, cfg.BigQuery.FlushInterval)
		})
	}
	logg.Info(ctx, "analytics worker ready")
	return group.Wait()
}

// flushEvery drains partially filled batches so rows never wait on traffic.
func flushEvery(ctx context.Context, logg *logger.Logger, rows *writer.BigQueryWriter, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := rows.Flush(ctx); err != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "periodic analytics flush failed")
			}
		}
	}
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, fmt.Sprintf("failed to close %s", name), err)
	}
}
