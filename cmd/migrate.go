package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/umx/internal/formatter"
	"github.com/desertthunder/umx/internal/metrics"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/repositories"
	"github.com/desertthunder/umx/internal/shared"
	"github.com/desertthunder/umx/internal/tasks"
	"github.com/desertthunder/umx/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

// MigrateRun reads the source users, writes the CSV export and replicates them to the target.
//
// Per-user failures are reported in the summary and do not fail the command.
func (r *Runner) MigrateRun(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	opts, err := r.runOptions(cmd, config)
	if err != nil {
		return err
	}

	engine, err := r.newEngine(config)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	var recorder tasks.Recorder = metrics.Nop{}
	if config.Metrics.Textfile != "" {
		collector = metrics.NewCollector(prometheus.NewRegistry())
		recorder = collector
	}
	engine.SetRecorder(recorder)

	if config.Database.Path != "" {
		db, err := r.openDatabase(config)
		if err != nil {
			r.logger.Warn("run history disabled", "path", config.Database.Path, "err", err)
		} else {
			defer db.Close()
			engine.SetRunStore(repositories.NewRunRepository(db))
		}
	}

	r.logger.Info("starting migration",
		"source", config.Source.Address, "target", config.Target.Address, "dry_run", opts.DryRun)
	if opts.DryRun {
		r.writePlain("%s\n\n", ui.Warn("Dry run: no users will be created on the target"))
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := r.renderProgress(progressCh)

	result, err := engine.Run(ctx, progressCh, opts)
	close(progressCh)
	<-done

	if collector != nil {
		if werr := collector.WriteTextfile(config.Metrics.Textfile); werr != nil {
			r.logger.Warn("failed to write metrics", "path", config.Metrics.Textfile, "err", werr)
		}
	}

	if err != nil {
		if result != nil && result.Batch != nil {
			r.writeBatchSummary("Migration Aborted", result, opts)
		}
		return err
	}

	title := "Migration Complete"
	if opts.DryRun {
		title = "Dry Run Complete"
	}
	r.writeBatchSummary(title, result, opts)
	return nil
}

// runOptions resolves export, replay and dry-run flags against the config.
func (r *Runner) runOptions(cmd *cli.Command, config *shared.Config) (tasks.RunOptions, error) {
	opts := tasks.RunOptions{
		DryRun:    cmd.Bool("dry-run") || config.Migration.DryRun,
		RateLimit: config.Migration.RateLimit,
	}

	if cmd.Bool("no-export") && cmd.IsSet("export") {
		return opts, fmt.Errorf("%w: cannot specify both --export and --no-export", shared.ErrInvalidArgument)
	}

	switch {
	case cmd.Bool("no-export"):
	case cmd.String("export") != "":
		opts.ExportPath = cmd.String("export")
	case config.Export.Enabled:
		opts.ExportPath = exportPath(config)
	}

	if path := cmd.String("from-csv"); path != "" {
		records, err := formatter.ReadUsersCSV(path)
		if err != nil {
			return opts, err
		}
		opts.Records = records
		opts.RecordsSrc = path
	}

	return opts, nil
}

func exportPath(config *shared.Config) string {
	if strings.TrimSpace(config.Export.Path) == "" {
		return formatter.DefaultExportPath
	}
	return config.Export.Path
}

// MigrateExport reads the source users and writes the CSV export without touching the target.
func (r *Runner) MigrateExport(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	path := cmd.String("output")
	if path == "" {
		path = exportPath(config)
	}

	engine, err := r.newEngine(config)
	if err != nil {
		return err
	}

	progressCh := make(chan tasks.ProgressUpdate, 10)
	done := r.renderProgress(progressCh)

	result, err := engine.Export(ctx, progressCh, path)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.logger.Info("export complete", "path", result.Path, "users", result.Count)
	return nil
}

func (r *Runner) writeUpdate(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.ConnectSource, tasks.ConnectTarget:
		r.writePlain("🔌 %s\n", update.Message)
	case tasks.FetchUsers:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.WriteExport:
		if strings.HasPrefix(update.Message, "✗") {
			r.writePlain("%s\n", ui.Warn(update.Message))
		} else {
			r.writePlain("%s\n", ui.OK(update.Message))
		}
	case tasks.CreateUsers:
		if update.Step == 1 {
			r.writePlain("\n📝 Creating %d users\n", update.Total)
		}
		outcome, ok := update.Data.(tasks.ItemOutcome)
		if ok && outcome.Failure != nil {
			r.writePlain("   %s\n", ui.Err(update.Message))
		} else {
			r.writePlain("   %s\n", update.Message)
		}
	case tasks.Complete:
		r.writePlain("\n%s\n", update.Message)
	}
}

func (r *Runner) writeBatchSummary(title string, result *tasks.RunResult, opts tasks.RunOptions) {
	batch := result.Batch

	r.writePlain("\n")
	r.writePlainHeader(title)
	if result.RunID != "" {
		r.writePlain("Run: %s\n", result.RunID)
	}
	r.writePlain("Users read: %d\n", len(result.Records))

	switch {
	case result.ExportErr != nil:
		r.writePlain("Export: %s\n", ui.Warn(fmt.Sprintf("failed (%v)", result.ExportErr)))
	case result.ExportPath != "":
		r.writePlain("Export: %s\n", result.ExportPath)
	case opts.Records != nil:
		r.writePlain("Export: skipped (replayed from %s)\n", opts.RecordsSrc)
	default:
		r.writePlain("Export: skipped\n")
	}

	verb := "Created"
	if batch.DryRun {
		verb = "Would create"
	}
	r.writePlain("%s: %d of %d attempted\n", verb, batch.Succeeded, batch.Attempted)
	r.writePlain("Duration: %s\n", result.Duration.Round(time.Millisecond))

	if batch.Failed() == 0 {
		return
	}

	counts := batch.CountByReason()
	r.writePlainln("%s", ui.Err(fmt.Sprintf("Failed: %d users", batch.Failed())))
	for _, reason := range []models.FailureReason{models.ReasonInvalidRecord, models.ReasonAlreadyExists, models.ReasonCreateFailed} {
		if counts[reason] > 0 {
			r.writePlain("  %s: %d\n", reason, counts[reason])
		}
	}
	r.writePlain("\n")
	for _, f := range batch.Failures {
		r.writePlain("  - %s (%s) %s\n", f.Username, f.Reason, ui.Help(f.Message()))
	}
}
