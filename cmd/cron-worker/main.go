package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/partsdepot/cart-service/internal/cart"
	"github.com/partsdepot/cart-service/internal/cron"
	"github.com/partsdepot/cart-service/internal/parts"
	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/db"
	"github.com/partsdepot/cart-service/pkg/instance"
	"github.com/partsdepot/cart-service/pkg/logger"
	"github.com/partsdepot/cart-service/pkg/metrics"
	"github.com/partsdepot/cart-service/pkg/migrate"
	"github.com/partsdepot/cart-service/pkg/outbox"
	"github.com/partsdepot/cart-service/pkg/redis"
)

const lockName = "cron"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	outboxRepo := outbox.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cart.ServiceParams{
		Repository:      cart.NewRepository(dbClient.DB()),
		Tx:              dbClient,
		Parts:           parts.NewRepository(dbClient.DB()),
		Events:          outbox.NewService(outboxRepo, logg),
		Metrics:         metrics.NewCartMetrics(prometheus.DefaultRegisterer),
		Logger:          logg,
		CreateAttempts:  cfg.Cart.CreateAttempts,
		MaxLineQuantity: cfg.Cart.MaxLineQuantity,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	cleanupJob, err := cron.NewCartCleanupJob(cron.CartCleanupJobParams{
		Logger:  logg,
		Carts:   cartService,
		MaxIdle: cfg.Cart.CleanupDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart cleanup job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Outbox:       outboxRepo,
		DLQ:          outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.RetentionDays,
		DLQRetention: cfg.Outbox.DLQRetentionDays,
		MinAttempts:  cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:      logg,
		Registry:    cron.NewRegistry(cleanupJob, retentionJob),
		Lock:        lock,
		Metrics:     metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Interval:    cfg.Cron.Interval,
		JobTimeout:  cfg.Cron.JobTimeout,
		LockRefresh: lock.TTL() / 3,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"lock":        lock.Key(),
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
