package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dhandebaz/sangathan-sub001/internal/api"
	"github.com/dhandebaz/sangathan-sub001/internal/app"
	"github.com/dhandebaz/sangathan-sub001/internal/config"
	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
	"github.com/dhandebaz/sangathan-sub001/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath)
	if err != nil {
		slog.Warn("migrations failed", "error", err)
	} else if len(applied) > 0 {
		slog.Info("migrations applied", "versions", applied)
	}

	// Redis carries the asynq trigger and, optionally, rate limit windows.
	// Without it jobs still run on the worker's schedule.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, on-demand job triggers disabled", "error", err)
	}
	defer rdb.Close()

	trigger := queue.NewClient(queue.RedisOpt(cfg.Redis))
	defer trigger.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	svc, err := app.New(cfg, app.Options{
		DB:       db,
		Redis:    rdb,
		Notifier: trigger,
		Logger:   logger,
	})
	if err != nil {
		slog.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(db, rdb, svc)
	handler := router.Setup()

	stop := make(chan struct{})
	go router.IPLimiter().Run(stop)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "auth_mode", cfg.Auth.Mode, "rate_limit_backend", cfg.RateLimit.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
