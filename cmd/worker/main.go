package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vzcourier/vzcourier-backend/internal/app"
	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/jobs"
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

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open dependencies", slog.Any("error", err))
		os.Exit(1)
	}
	defer deps.Close()

	metrics := jobmetrics.NewMetrics(nil)
	importJob := jobs.NewPriceSheetImportJob(deps.PriceSheets, cfg.ImportDir, logger, metrics)
	warmupJob := jobs.NewCacheWarmupJob(deps.PriceSheets, logger, metrics)

	warmupTask, err := jobs.NewCacheWarmupTask("cron")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPriceSheetImport, Handler: importJob.Handle},
			{Type: jobs.TaskPriceSheetCacheWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	bumps, err := deps.Cache.Subscribe(ctx)
	if err != nil {
		logger.Warn("subscribe to cache bumps", slog.Any("error", err))
	} else if bumps != nil {
		go warmupJob.Follow(ctx, bumps)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
