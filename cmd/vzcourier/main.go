package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vzcourier/vzcourier-backend/cmd/vzcourier/cli"
	"github.com/vzcourier/vzcourier-backend/internal/app"
	jobmetrics "github.com/vzcourier/vzcourier-backend/internal/jobs"
	"github.com/vzcourier/vzcourier-backend/internal/platform/db"
	"github.com/vzcourier/vzcourier-backend/jobs"
)

const usage = `usage: vzcourier <command> [flags]

commands:
  serve          run the HTTP API (default)
  migrate        apply database migrations
  import         import a spreadsheet into a named price sheet
  enqueue-import queue an import for the worker
  warmup         queue a cache warmup
  queue-stats    print job queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var code int
	switch cmd {
	case "serve":
		code = serve(ctx, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "import":
		code = runImport(ctx, cfg, logger, args)
	case "enqueue-import":
		code = enqueueImport(ctx, cfg, args)
	case "warmup":
		code = withJobs(cfg, func(c *cli.JobsCLI) error {
			info, err := c.Trigger(ctx, jobs.TaskPriceSheetCacheWarmup)
			if err == nil {
				fmt.Printf("queued %s (%s)\n", info.Type, info.ID)
			}
			return err
		})
	case "queue-stats":
		code = withJobs(cfg, func(c *cli.JobsCLI) error {
			stats, err := c.InspectQueue(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(stats)
		})
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		code = 2
	}
	os.Exit(code)
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		return 1
	}
	logger.Info("migrations applied")
	return 0
}

func runImport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	var opts cli.ImportOptions
	bindImportFlags(fs, &opts.File, &opts.SheetName, &opts.Description, &opts.IsDefault, &opts.Lenient, &opts.Layout, &opts.ServiceType)
	fs.BoolVar(&opts.DryRun, "dry-run", false, "parse and report without storing")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	metrics := jobmetrics.NewMetrics(nil)
	if opts.DryRun {
		return cli.NewImportCLI(nil, metrics).ImportCommand(ctx, opts)
	}

	svc, cleanup, err := app.NewPriceSheetService(ctx, cfg, logger)
	if err != nil {
		logger.Error("init price sheet service", slog.Any("error", err))
		return 1
	}
	defer cleanup()
	return cli.NewImportCLI(svc, metrics).ImportCommand(ctx, opts)
}

func enqueueImport(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("enqueue-import", flag.ContinueOnError)
	var p jobs.PriceSheetImportPayload
	bindImportFlags(fs, &p.Path, &p.SheetName, &p.Description, &p.IsDefault, &p.Lenient, &p.Layout, &p.ServiceType)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return withJobs(cfg, func(c *cli.JobsCLI) error {
		info, err := c.EnqueueImport(ctx, p)
		if err == nil {
			fmt.Printf("queued %s (%s)\n", info.Type, info.ID)
		}
		return err
	})
}

func bindImportFlags(fs *flag.FlagSet, file, name, description *string, isDefault, lenient *bool, layout, service *string) {
	fs.StringVar(file, "file", "", "spreadsheet to import (.xlsx or .csv)")
	fs.StringVar(name, "name", "", "price sheet name; an existing sheet with this name is replaced")
	fs.StringVar(description, "description", "", "sheet description")
	fs.BoolVar(isDefault, "default", false, "make the sheet the default")
	fs.BoolVar(lenient, "lenient", false, "keep zero rates and recover rates from neighbouring columns")
	fs.StringVar(layout, "layout", "rows", "rows or matrix")
	fs.StringVar(service, "service", "", "service type for matrix layouts")
}

func withJobs(cfg *app.Config, fn func(*cli.JobsCLI) error) int {
	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = c.Close() }()
	if err := fn(c); err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	return 0
}
