package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/partsdepot/cart-service/internal/publisher"
	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/db"
	"github.com/partsdepot/cart-service/pkg/instance"
	"github.com/partsdepot/cart-service/pkg/logger"
	"github.com/partsdepot/cart-service/pkg/metrics"
	"github.com/partsdepot/cart-service/pkg/migrate"
	"github.com/partsdepot/cart-service/pkg/outbox"
	"github.com/partsdepot/cart-service/pkg/outbox/registry"
	"github.com/partsdepot/cart-service/pkg/rabbitmq"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"instance": instance.GetID(), "env": cfg.App.Env},
	})

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

	brokerClient, err := rabbitmq.NewClient(context.Background(), cfg.RabbitMQ, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap rabbitmq", err)
		os.Exit(1)
	}
	defer func() {
		if err := brokerClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing rabbitmq client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.RabbitMQ)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	relay, err := publisher.New(publisher.Params{
		Logger:       logg,
		DB:           dbClient,
		Broker:       brokerClient,
		Outbox:       outbox.NewRepository(dbClient.DB()),
		DLQ:          outbox.NewDLQRepository(dbClient.DB()),
		Registry:     eventRegistry,
		Metrics:      metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		PollInterval: time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"exchange":    brokerClient.Exchange(),
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
