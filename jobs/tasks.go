package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPriceSheetImport imports a spreadsheet from disk into a named sheet.
	TaskPriceSheetImport = "pricesheet:import"
	// TaskPriceSheetCacheWarmup preloads the active sheet for every vendor.
	TaskPriceSheetCacheWarmup = "pricesheet:cache_warmup"
)

// PriceSheetImportPayload describes a queued import.
type PriceSheetImportPayload struct {
	Path        string `json:"path"`
	SheetName   string `json:"sheet_name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default,omitempty"`
	Lenient     bool   `json:"lenient,omitempty"`
	Layout      string `json:"layout,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
	UploadedBy  string `json:"uploaded_by,omitempty"`
}

// NewPriceSheetImportTask constructs an Asynq task for a spreadsheet import.
func NewPriceSheetImportTask(payload PriceSheetImportPayload) (*asynq.Task, error) {
	payload.Path = strings.TrimSpace(payload.Path)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPriceSheetImport, data, asynq.MaxRetry(3)), nil
}

// CacheWarmupPayload is the body of a warmup task.
type CacheWarmupPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewCacheWarmupTask constructs the cache warmup task.
func NewCacheWarmupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(CacheWarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPriceSheetCacheWarmup, data), nil
}
