package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"payment-stats/internal/clock"
	"payment-stats/internal/config"
	"payment-stats/internal/infra"
	"payment-stats/internal/payments"
	"payment-stats/internal/payments/handlers"
	"payment-stats/internal/redis"
	"syscall"

	"github.com/NYTimes/gziphandler"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid time zone", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(cfg.RedisURL)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		rdb = redisClient.Client
	}

	store, closeStore, err := payments.NewStore(ctx, cfg, rdb)
	if err != nil {
		slog.Error("failed to open payment store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	deps := handlers.Dependencies{
		Service: payments.NewPaymentService(store, clock.NewSystem(loc)),
		Store:   store,
	}
	// Queue and Locker stay nil interfaces without Redis.
	if redisClient != nil {
		deps.Locker = redisClient
	}
	if cfg.QueueWrites() {
		deps.Queue = infra.NewPaymentQueue(redisClient.Client, store, cfg.IngestConsumers, cfg.IngestBlock)
	} else if redisClient != nil {
		slog.Warn("saving payments directly, the ingest worker cannot serve the memory store", "store", cfg.Store)
	}

	e := echo.New()
	e.HideBanner = true
	handlers.Register(e, deps)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: gziphandler.GzipHandler(recoverMiddleware(e)),
	}

	go func() {
		slog.Info("server started", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "error", rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
