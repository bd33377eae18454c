// Package cli implements the operator subcommands of the vzcourier binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// Importer stores parsed records under a sheet name.
type Importer interface {
	Import(ctx context.Context, req pricesheet.ImportRequest) (pricesheet.ImportResult, error)
}

// ImportOptions defines the flags of the import command.
type ImportOptions struct {
	File        string
	SheetName   string
	Description string
	IsDefault   bool
	Lenient     bool
	DryRun      bool
	JSONOutput  bool
	Layout      string
	ServiceType string
	Stdout      io.Writer
	Stderr      io.Writer
}

// ImportSummary is printed after an import.
type ImportSummary struct {
	SheetID   string            `json:"sheet_id,omitempty"`
	SheetName string            `json:"sheet_name"`
	Created   bool              `json:"created"`
	DryRun    bool              `json:"dry_run"`
	Items     int               `json:"items"`
	Skipped   int               `json:"skipped"`
	Countries int               `json:"countries"`
	Services  int               `json:"services"`
	Columns   map[string]int    `json:"columns"`
	Fallbacks []ingest.Fallback `json:"fallbacks,omitempty"`
}

// ImportCLI imports spreadsheets from disk.
type ImportCLI struct {
	importer Importer
	metrics  *jobmetrics.Metrics
}

// NewImportCLI constructs the import command. importer may be nil for dry runs.
func NewImportCLI(importer Importer, metrics *jobmetrics.Metrics) *ImportCLI {
	return &ImportCLI{importer: importer, metrics: metrics}
}

// ImportCommand parses opts.File and replaces the items of the sheet named
// opts.SheetName, creating it when missing. It returns the process exit code.
func (c *ImportCLI) ImportCommand(ctx context.Context, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.File) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "import: --file is required")
		return 1
	}
	if strings.TrimSpace(opts.SheetName) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "import: --name is required")
		return 1
	}
	layout, err := ingest.ParseLayout(opts.Layout)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %s\n", shared.UserSafeMessage(err))
		return 1
	}

	grid, err := ingest.ReadFile(opts.File)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return 1
	}
	policy := ingest.StrictPolicy
	if opts.Lenient {
		policy = ingest.LenientPolicy
	}
	parsed := ingest.Options{Layout: layout, Policy: policy, ServiceType: opts.ServiceType}.Apply(grid)
	c.metrics.RecordImport("cli", len(parsed.Records), parsed.Skipped)
	if err := parsed.Err(); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %s\n", shared.UserSafeMessage(err))
		return 2
	}

	summary := ImportSummary{
		SheetName: strings.TrimSpace(opts.SheetName),
		DryRun:    opts.DryRun,
		Items:     len(parsed.Records),
		Skipped:   parsed.Skipped,
		Countries: distinct(parsed.Records, func(r ingest.Record) string { return r.Country }),
		Services:  distinct(parsed.Records, func(r ingest.Record) string { return r.ServiceType }),
		Columns:   parsed.Columns.Map(),
		Fallbacks: parsed.Fallbacks,
	}

	if !opts.DryRun {
		if c.importer == nil {
			_, _ = fmt.Fprintln(opts.Stderr, "import: store not configured")
			return 1
		}
		result, err := c.importer.Import(ctx, pricesheet.ImportRequest{
			SheetName:   opts.SheetName,
			Description: opts.Description,
			FileName:    filepath.Base(opts.File),
			IsDefault:   opts.IsDefault,
			Records:     parsed.Records,
		})
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
			return 1
		}
		summary.SheetID = result.Sheet.ID.String()
		summary.Created = result.Created
		summary.Items = len(result.Sheet.Items)
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderImportHuman(opts.Stdout, summary)
	return 0
}

func renderImportHuman(out io.Writer, s ImportSummary) {
	switch {
	case s.DryRun:
		_, _ = fmt.Fprintf(out, "Dry run for %q, nothing stored\n", s.SheetName)
	case s.Created:
		_, _ = fmt.Fprintf(out, "Created price sheet %q (%s)\n", s.SheetName, s.SheetID)
	default:
		_, _ = fmt.Fprintf(out, "Replaced items of price sheet %q (%s)\n", s.SheetName, s.SheetID)
	}
	_, _ = fmt.Fprintf(out, "Items: %d\n", s.Items)
	_, _ = fmt.Fprintf(out, "Skipped rows: %d\n", s.Skipped)
	_, _ = fmt.Fprintf(out, "Unique countries: %d\n", s.Countries)
	_, _ = fmt.Fprintf(out, "Unique services: %d\n", s.Services)
	for _, fb := range s.Fallbacks {
		_, _ = fmt.Fprintf(out, " - row %d: rate %.2f taken from column %d\n", fb.Row, fb.Rate, fb.Column)
	}
}

func distinct(records []ingest.Record, key func(ingest.Record) string) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		if k := key(r); k != "" {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}
