package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dhandebaz/sangathan-sub001/internal/app"
	"github.com/dhandebaz/sangathan-sub001/internal/config"
	"github.com/dhandebaz/sangathan-sub001/internal/database"
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

	svc, err := app.New(cfg, app.Options{DB: db, Logger: logger})
	if err != nil {
		slog.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	redisOpt := queue.RedisOpt(cfg.Redis)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Jobs.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeProcessNext, queue.ProcessNextHandler(svc.Processor))
	registry.Register(queue.TypeRequeueExpired, queue.RequeueExpiredHandler(svc.Processor))

	scheduler, err := queue.NewScheduler(redisOpt, cfg.Jobs.Interval)
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	slog.Info("starting worker", "concurrency", cfg.Jobs.Concurrency, "interval", cfg.Jobs.Interval.String())
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()
	slog.Info("worker stopped")
}
