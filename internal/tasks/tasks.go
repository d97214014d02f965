// package tasks implements the user-manager migration between two RouterOS devices.
//
// The core abstraction is MigrationEngine, which orchestrates import, export and replication.
// Operations emit progress updates via channels for status reporting to the CLI.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/umx/internal/device"
	"github.com/desertthunder/umx/internal/formatter"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
	"golang.org/x/time/rate"
)

// Session is an open device handle owned by the engine for the duration of one phase.
type Session interface {
	device.Caller
	Close() error
}

// Opener opens a [Session]; [OpenDevice] is the production implementation.
type Opener func(ctx context.Context, cfg device.Config) (Session, error)

// OpenDevice opens a RouterOS API session.
func OpenDevice(ctx context.Context, cfg device.Config) (Session, error) {
	s, err := device.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RunStore persists run history. [repositories.RunRepository] implements it.
type RunStore interface {
	Create(run *models.Run) error
	Update(run *models.Run) error
	AddFailures(runID string, failures []models.RunFailure) error
}

// Side selects one of the two configured devices.
type Side string

const (
	Source Side = "source"
	Target Side = "target"
)

// ParseSide validates a device selector.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Source, Target:
		return Side(s), nil
	default:
		return "", fmt.Errorf("%w: device must be %q or %q, got %q", shared.ErrInvalidArgument, Source, Target, s)
	}
}

// EngineConfig is the explicit run context: both devices and both schemas.
type EngineConfig struct {
	Source       device.Config
	Target       device.Config
	SourceSchema models.Schema
	TargetSchema models.Schema
}

// RunOptions controls a single [MigrationEngine.Run].
type RunOptions struct {
	DryRun     bool
	ExportPath string              // empty disables the CSV artifact
	Records    []models.UserRecord // replayed instead of reading the source when non-nil
	RecordsSrc string              // where Records came from, for progress messages
	RateLimit  float64             // create calls per second, 0 disables
}

// RunResult contains all data from a migration run.
type RunResult struct {
	RunID      string              // history ID, empty without a [RunStore]
	Records    []models.UserRecord // the migration batch in source order
	Batch      *models.BatchResult // nil when the run failed before replication
	ExportPath string              // artifact path, empty when export was skipped or failed
	ExportErr  error               // non-fatal export failure
	Duration   time.Duration
}

// ExportResult describes a CSV artifact written by [MigrationEngine.Export].
type ExportResult struct {
	Path  string
	Count int
}

// MigrationEngine moves user-manager users from the source device to the target device.
type MigrationEngine struct {
	cfg      EngineConfig
	open     Opener
	logger   *log.Logger
	recorder Recorder
	runs     RunStore
}

// NewMigrationEngine creates a MigrationEngine. A nil opener uses [OpenDevice].
func NewMigrationEngine(cfg EngineConfig, open Opener, logger *log.Logger) *MigrationEngine {
	if open == nil {
		open = OpenDevice
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &MigrationEngine{cfg: cfg, open: open, logger: logger}
}

// SetRecorder attaches a metrics recorder.
func (e *MigrationEngine) SetRecorder(r Recorder) { e.recorder = r }

// SetRunStore enables run history.
func (e *MigrationEngine) SetRunStore(s RunStore) { e.runs = s }

// Run performs a full migration: import from source, optional export, then replication to target.
//
// Session and import failures are returned as errors; an export failure is reported in
// [RunResult.ExportErr] and replication proceeds. Sessions are closed on every path.
func (e *MigrationEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, opts RunOptions) (*RunResult, error) {
	started := time.Now()
	result := &RunResult{}
	run := e.startRun(opts)
	if run != nil {
		result.RunID = run.ID()
	}

	batch, err := e.run(ctx, progress, opts, result)
	result.Batch = batch
	result.Duration = time.Since(started)

	e.finishRun(run, result, err)
	if e.recorder != nil {
		e.recorder.Finished(time.Now())
	}
	return result, err
}

func (e *MigrationEngine) run(ctx context.Context, progress chan<- ProgressUpdate, opts RunOptions, result *RunResult) (*models.BatchResult, error) {
	if opts.Records != nil {
		result.Records = opts.Records
		sendProgress(ctx, progress, loadedUsersUpdate(len(opts.Records), opts.RecordsSrc))
	} else {
		records, err := e.importRecords(ctx, progress)
		if err != nil {
			return nil, err
		}
		result.Records = records

		if opts.ExportPath != "" {
			path, err := formatter.WriteUsersCSV(records, opts.ExportPath)
			if err != nil {
				result.ExportErr = err
				e.logger.Warn("export failed, continuing with replication", "path", path, "err", err)
				sendProgress(ctx, progress, exportFailedUpdate(path, err))
			} else {
				result.ExportPath = path
				e.logger.Info("export written", "path", path, "users", len(records))
				sendProgress(ctx, progress, exportWrittenUpdate(len(records), path))
			}
		}
	}

	var target Session
	if !opts.DryRun {
		sendProgress(ctx, progress, connectTargetUpdate(e.cfg.Target.HostPort()))
		s, err := e.open(ctx, e.cfg.Target)
		if err != nil {
			return nil, err
		}
		defer e.closeSession(s, Target)
		target = s
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	batch, err := Replicate(ctx, target, result.Records, e.cfg.TargetSchema, ReplicateOptions{
		DryRun:   opts.DryRun,
		Limiter:  limiter,
		Progress: progress,
		Recorder: e.recorder,
		Logger:   e.logger,
	})
	if err != nil {
		return batch, err
	}

	sendProgress(ctx, progress, completeUpdate(batch))
	return batch, nil
}

// Export reads the source collection and writes the CSV artifact without touching the target.
func (e *MigrationEngine) Export(ctx context.Context, progress chan<- ProgressUpdate, path string) (*ExportResult, error) {
	records, err := e.importRecords(ctx, progress)
	if err != nil {
		return nil, err
	}

	written, err := formatter.WriteUsersCSV(records, path)
	if err != nil {
		sendProgress(ctx, progress, exportFailedUpdate(written, err))
		return nil, err
	}

	sendProgress(ctx, progress, exportWrittenUpdate(len(records), written))
	return &ExportResult{Path: written, Count: len(records)}, nil
}

// List reads the user collection of one device.
//
// Target records recover their email from the migration comment when present.
func (e *MigrationEngine) List(ctx context.Context, side Side) ([]models.UserRecord, error) {
	cfg, schema := e.cfg.Source, e.cfg.SourceSchema
	if side == Target {
		cfg, schema = e.cfg.Target, e.cfg.TargetSchema
	}

	s, err := e.open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer e.closeSession(s, side)

	entries, err := ImportUsers(ctx, s, schema)
	if err != nil {
		return nil, err
	}

	records := models.RecordsFromEntries(entries, schema)
	if side == Target {
		for i, entry := range entries {
			if comment, ok := schema.Lookup(entry, models.FieldComment); ok {
				records[i].Email, records[i].HasEmail = models.EmailFromComment(comment)
			}
		}
	}
	return records, nil
}

// importRecords opens the source, reads it once and releases it before returning.
func (e *MigrationEngine) importRecords(ctx context.Context, progress chan<- ProgressUpdate) ([]models.UserRecord, error) {
	sendProgress(ctx, progress, connectSourceUpdate(e.cfg.Source.HostPort()))

	source, err := e.open(ctx, e.cfg.Source)
	if err != nil {
		return nil, err
	}
	defer e.closeSession(source, Source)

	sendProgress(ctx, progress, fetchUsersUpdate(e.cfg.SourceSchema.Path))
	entries, err := ImportUsers(ctx, source, e.cfg.SourceSchema)
	if err != nil {
		return nil, err
	}

	records := models.RecordsFromEntries(entries, e.cfg.SourceSchema)
	if e.recorder != nil {
		e.recorder.Imported(len(records))
	}
	sendProgress(ctx, progress, fetchedUsersUpdate(len(records)))
	e.logger.Info("users imported", "device", source.Address(), "users", len(records))
	return records, nil
}

func (e *MigrationEngine) closeSession(s Session, side Side) {
	if err := s.Close(); err != nil {
		e.logger.Warn("failed to close session", "device", side, "err", err)
	}
}

func (e *MigrationEngine) startRun(opts RunOptions) *models.Run {
	if e.runs == nil {
		return nil
	}

	run := models.NewRun(0, e.cfg.Source.HostPort(), e.cfg.Target.HostPort(), opts.DryRun)
	if err := e.runs.Create(run); err != nil {
		e.logger.Warn("failed to record run", "err", err)
		return nil
	}
	return run
}

func (e *MigrationEngine) finishRun(run *models.Run, result *RunResult, err error) {
	if run == nil {
		return
	}

	run.SetUsersTotal(len(result.Records))
	run.SetExportPath(result.ExportPath)
	run.ApplyBatch(result.Batch)
	run.Complete(err)

	if uerr := e.runs.Update(run); uerr != nil {
		e.logger.Warn("failed to update run", "run_id", run.ID(), "err", uerr)
		return
	}

	if result.Batch != nil && result.Batch.Failed() > 0 {
		failures := models.FailuresFromBatch(run.ID(), result.Batch)
		if ferr := e.runs.AddFailures(run.ID(), failures); ferr != nil {
			e.logger.Warn("failed to record run failures", "run_id", run.ID(), "err", ferr)
		}
	}
}
