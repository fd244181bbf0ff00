package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/estore-backend/internal/consumers/worker"
	"github.com/angelmondragon/estore-backend/internal/delivery"
	"github.com/angelmondragon/estore-backend/internal/discounts"
	"github.com/angelmondragon/estore-backend/internal/notifications"
	"github.com/angelmondragon/estore-backend/internal/orders"
	"github.com/angelmondragon/estore-backend/internal/shipping"
	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/db"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/metrics"
	"github.com/angelmondragon/estore-backend/pkg/notify"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
	"github.com/angelmondragon/estore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/estore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/estore-backend/pkg/pubsub"
	"github.com/angelmondragon/estore-backend/pkg/redis"
	"github.com/angelmondragon/estore-backend/pkg/shiprocket"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	claims, err := idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency guard", err)

	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	discountSvc, err := discounts.NewService(discounts.NewRepository(dbClient.DB()), dbClient, logg)
	requireResource(ctx, logg, "discounts service", err)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Outbox:    outboxSvc,
		Discounts: discountSvc,
		Logger:    logg,
	})
	requireResource(ctx, logg, "orders service", err)

	deliverySvc, err := delivery.NewService(delivery.ServiceParams{
		Repo:   delivery.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Outbox: outboxSvc,
		Orders: orderSvc,
		Logger: logg,
	})
	requireResource(ctx, logg, "delivery service", err)

	shiprocketClient, err := shiprocket.NewClient(cfg.Shipping, httpclient.New("shiprocket", cfg.Gateway, httpclient.WithMetrics(gatewayMetrics)))
	requireResource(ctx, logg, "shiprocket client", err)

	registrar, err := shipping.NewRegistrar(deliverySvc, orderSvc, shiprocketClient, logg)
	requireResource(ctx, logg, "shipping registrar", err)

	notifyClient, err := notify.NewClient(cfg.Notify, httpclient.New("notify", cfg.Gateway, httpclient.WithMetrics(gatewayMetrics)))
	requireResource(ctx, logg, "notify client", err)

	dispatcher, err := notifications.NewDispatcher(notifyClient, logg)
	requireResource(ctx, logg, "notification dispatcher", err)

	shippingSub, err := pubsubClient.Subscriber(ctx, cfg.PubSub.ShippingSubscription)
	requireResource(ctx, logg, "shipping subscription", err)
	notificationSub, err := pubsubClient.Subscriber(ctx, cfg.PubSub.NotificationSubscription)
	requireResource(ctx, logg, "notification subscription", err)

	shippingConsumer, err := worker.NewService(shipping.ConsumerName, shippingSub, registrar, claims, logg)
	requireResource(ctx, logg, "shipping consumer", err)

	notificationConsumer, err := worker.NewService(notifications.ConsumerName, notificationSub, dispatcher, claims, logg)
	requireResource(ctx, logg, "notification consumer", err)

	schemas := registry.CurrentSchemas()
	shippingConsumer.ValidatePayloads(schemas)
	notificationConsumer.ValidatePayloads(schemas)

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
		Consumers: map[string]consumer{
			shipping.ConsumerName:      shippingConsumer,
			notifications.ConsumerName: notificationConsumer,
		},
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
