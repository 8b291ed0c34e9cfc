package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"payment-stats/internal/config"
	"payment-stats/internal/infra"
	"payment-stats/internal/payments"
	"payment-stats/internal/redis"
	"syscall"
)

const groupLockName = "payments:ingest-group"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if cfg.RedisURL == "" {
		slog.Error("REDIS_URL is required by the ingest worker")
		os.Exit(1)
	}
	// The server reads from its own process memory, so the worker would
	// write payments nobody can query.
	if cfg.Store == config.StoreMemory {
		slog.Error("the ingest worker needs a shared PAYMENTS_STORE", "store", cfg.Store)
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(cfg.RedisURL)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := payments.NewStore(ctx, cfg, redisClient.Client)
	if err != nil {
		slog.Error("failed to open payment store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	queue := infra.NewPaymentQueue(redisClient.Client, store, cfg.IngestConsumers, cfg.IngestBlock)

	if err := redisClient.WithLock(ctx, groupLockName, queue.EnsureGroup); err != nil {
		slog.Error("failed to prepare ingest stream", "error", err)
		os.Exit(1)
	}

	if err := queue.Start(ctx); err != nil {
		slog.Error("failed to start ingest worker", "error", err)
		os.Exit(1)
	}
	slog.Info("ingest worker started", "stream", infra.PaymentStream, "group", infra.PaymentGroup, "store", cfg.Store)

	<-ctx.Done()
	slog.Info("shutting down worker...")
	queue.Wait()
}
