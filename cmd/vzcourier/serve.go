package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vzcourier/vzcourier-backend/internal/app"
	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/observability"
	pricesheethttp "github.com/vzcourier/vzcourier-backend/internal/pricesheet/http"
	"github.com/vzcourier/vzcourier-backend/jobs"
)

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open dependencies", slog.Any("error", err))
		return 1
	}
	defer deps.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		PriceSheetHandler: pricesheethttp.NewHandler(logger, deps.PriceSheets, pricesheethttp.Options{
			MaxUploadBytes:   cfg.PriceSheetMaxUpload,
			UploadsPerMinute: cfg.UploadsPerMinute,
			Debug:            cfg.IsDevelopment(),
			Metrics:          jobMetrics,
		}),
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    metrics,
		Checks:     deps.Checks(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}
