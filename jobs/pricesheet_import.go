package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Importer stores parsed records under a sheet name.
type Importer interface {
	Import(ctx context.Context, req pricesheet.ImportRequest) (pricesheet.ImportResult, error)
}

// PriceSheetImportJob imports spreadsheets that were dropped on disk.
type PriceSheetImportJob struct {
	Importer Importer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	// Dir, when set, confines payload paths to this directory.
	Dir string
}

// NewPriceSheetImportJob wires dependencies for the import handler.
func NewPriceSheetImportJob(importer Importer, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *PriceSheetImportJob {
	return &PriceSheetImportJob{Importer: importer, Dir: dir, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPriceSheetImport tasks. Bad payloads, missing files
// and sheets without valid rows are not retried.
func (j *PriceSheetImportJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Importer == nil {
		return errors.New("pricesheet import: handler not configured")
	}
	var payload PriceSheetImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("pricesheet import: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskPriceSheetImport)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("path", payload.Path), slog.String("sheet_name", payload.SheetName))

	path, err := j.resolve(payload.Path)
	if err != nil {
		return fmt.Errorf("pricesheet import: %v: %w", err, asynq.SkipRetry)
	}
	layout, err := ingest.ParseLayout(payload.Layout)
	if err != nil {
		return fmt.Errorf("pricesheet import: %v: %w", err, asynq.SkipRetry)
	}

	grid, err := ingest.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, shared.ErrValidation) {
			return fmt.Errorf("pricesheet import: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	policy := ingest.StrictPolicy
	if payload.Lenient {
		policy = ingest.LenientPolicy
	}
	parsed := ingest.Options{Layout: layout, Policy: policy, ServiceType: payload.ServiceType}.Apply(grid)
	j.metrics().RecordImport("worker", len(parsed.Records), parsed.Skipped)
	for _, fb := range parsed.Fallbacks {
		logger.Info("rate recovered from neighbouring column",
			slog.Int("row", fb.Row), slog.Int("column", fb.Column), slog.Float64("rate", fb.Rate))
	}
	if err := parsed.Err(); err != nil {
		return fmt.Errorf("pricesheet import: %v: %w", err, asynq.SkipRetry)
	}

	result, err := j.Importer.Import(ctx, pricesheet.ImportRequest{
		SheetName:   payload.SheetName,
		Description: payload.Description,
		FileName:    filepath.Base(path),
		UploadedBy:  payload.UploadedBy,
		IsDefault:   payload.IsDefault,
		Records:     parsed.Records,
	})
	if err != nil {
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNoValidItems) {
			return fmt.Errorf("pricesheet import: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.Info("completed price sheet import",
		slog.String("sheet_id", result.Sheet.ID.String()),
		slog.Bool("created", result.Created),
		slog.Int("items", len(result.Sheet.Items)),
		slog.Int("skipped", parsed.Skipped))
	return nil
}

func (j *PriceSheetImportJob) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	if j.Dir == "" {
		return filepath.Clean(path), nil
	}
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(j.Dir, path)
		if err != nil || !filepath.IsLocal(rel) {
			return "", fmt.Errorf("path %q is outside %s", path, j.Dir)
		}
		return filepath.Join(j.Dir, rel), nil
	}
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q is outside %s", path, j.Dir)
	}
	return filepath.Join(j.Dir, path), nil
}

func (j *PriceSheetImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPriceSheetImport))
	}
	return slog.Default().With(slog.String("job", TaskPriceSheetImport))
}

func (j *PriceSheetImportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
