package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/accessd/accessd/internal/app"
	"github.com/accessd/accessd/internal/auth"
	"github.com/accessd/accessd/internal/authz"
	"github.com/accessd/accessd/internal/platform/cache"
	"github.com/accessd/accessd/internal/platform/db"
	"github.com/accessd/accessd/internal/roles"
	"github.com/accessd/accessd/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	claims := authz.NewClaimsCache(redisClient, cfg.ClaimsTTL)
	rolesRepo := roles.NewRepository(pool)
	authRepo := auth.NewRepository(pool)

	refreshHandler := jobs.NewRefreshHandler(rolesRepo, authRepo, claims, logger)
	sweepHandler := jobs.NewSweepHandler(authRepo, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeClaimsRefresh, Handler: refreshHandler},
			{Type: jobs.TaskTypeSessionSweep, Handler: sweepHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "17 * * * *", Task: jobs.NewSessionSweepTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting")
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
