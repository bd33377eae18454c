package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

const warmupParallelism = 4

// ActiveSheets is the read side the warmup exercises.
type ActiveSheets interface {
	VendorIDs(ctx context.Context) ([]string, error)
	GetActiveForVendor(ctx context.Context, vendorID string) (pricesheet.PriceSheet, error)
}

// CacheWarmupJob loads the active sheet for the anonymous vendor and every
// vendor with an assignment, so the first public read hits the cache.
type CacheWarmupJob struct {
	Sheets  ActiveSheets
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(sheets ActiveSheets, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{Sheets: sheets, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPriceSheetCacheWarmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Warm(ctx)
	return err
}

// Warm loads every vendor's active sheet and returns how many were found.
func (j *CacheWarmupJob) Warm(ctx context.Context) (warmed int, err error) {
	if j == nil || j.Sheets == nil {
		return 0, errors.New("cache warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskPriceSheetCacheWarmup)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	vendors, err := j.Sheets.VendorIDs(ctx)
	if err != nil {
		return 0, err
	}
	vendors = append([]string{""}, vendors...)

	found := make([]bool, len(vendors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupParallelism)
	for i, vendor := range vendors {
		g.Go(func() error {
			_, err := j.Sheets.GetActiveForVendor(gctx, vendor)
			switch {
			case err == nil:
				found[i] = true
				return nil
			case shared.IsNotFound(err):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		j.logger().Error("warm active sheets", slog.Any("error", err))
		return 0, err
	}
	for _, ok := range found {
		if ok {
			warmed++
		}
	}
	j.logger().Info("completed cache warmup",
		slog.Int("vendors", len(vendors)),
		slog.Int("warmed", warmed),
		slog.Duration("duration", time.Since(start)))
	return warmed, nil
}

// Follow rewarms after every cache version bump until bumps is closed or
// ctx is done.
func (j *CacheWarmupJob) Follow(ctx context.Context, bumps <-chan int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case ver, ok := <-bumps:
			if !ok {
				return
			}
			if _, err := j.Warm(ctx); err != nil && ctx.Err() == nil {
				j.logger().Warn("rewarm after bump failed", slog.Int64("version", ver), slog.Any("error", err))
			}
		}
	}
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPriceSheetCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPriceSheetCacheWarmup))
}

func (j *CacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
