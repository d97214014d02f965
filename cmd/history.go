package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/repositories"
	"github.com/desertthunder/umx/internal/shared"
	"github.com/desertthunder/umx/internal/ui"
	"github.com/urfave/cli/v3"
)

// runView is the JSON shape of a recorded run.
type runView struct {
	ID          string              `json:"id"`
	Sequence    int                 `json:"sequence"`
	Source      string              `json:"source"`
	Target      string              `json:"target"`
	Status      models.RunStatus    `json:"status"`
	DryRun      bool                `json:"dry_run"`
	Total       int                 `json:"users_total"`
	Attempted   int                 `json:"users_attempted"`
	Created     int                 `json:"users_created"`
	Failed      int                 `json:"users_failed"`
	ExportPath  string              `json:"export_path,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Failures    []models.RunFailure `json:"failures,omitempty"`
}

func newRunView(run *models.Run) runView {
	return runView{
		ID:          run.ID(),
		Sequence:    run.Sequence(),
		Source:      run.SourceAddress(),
		Target:      run.TargetAddress(),
		Status:      run.Status(),
		DryRun:      run.DryRun(),
		Total:       run.UsersTotal(),
		Attempted:   run.UsersAttempted(),
		Created:     run.UsersCreated(),
		Failed:      run.UsersFailed(),
		ExportPath:  run.ExportPath(),
		Error:       run.ErrorMessage(),
		StartedAt:   run.StartedAt(),
		CompletedAt: run.CompletedAt(),
	}
}

func (r *Runner) historyRepository(cmd *cli.Command) (*repositories.RunRepository, func(), error) {
	config, err := r.resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if config.Database.Path == "" {
		return nil, nil, fmt.Errorf("%w: run history requires database.path", shared.ErrInvalidConfig)
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewRunRepository(db), func() { db.Close() }, nil
}

// HistoryList prints recorded runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.historyRepository(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := repo.List(map[string]any{"limit": int(cmd.Int("limit"))})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]runView, len(runs))
		for i, run := range runs {
			views[i] = newRunView(run)
		}
		return r.writeJSON(views, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No runs recorded\n")
	}

	r.writePlainHeader(fmt.Sprintf("Runs (%d)", len(runs)))
	for _, run := range runs {
		mode := ""
		if run.DryRun() {
			mode = " dry-run"
		}
		r.writePlain("#%-4d %s  %-9s created %d/%d  failed %d%s  %s\n",
			run.Sequence(), run.ID(), statusLabel(run.Status()),
			run.UsersCreated(), run.UsersAttempted(), run.UsersFailed(), mode,
			formatTime(run.StartedAt()))
	}
	return nil
}

// HistoryShow prints one run with its per-user failures.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.historyRepository(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	id := cmd.String("id")
	run, err := repo.Get(id)
	if err != nil {
		return err
	}
	failures, err := repo.Failures(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		view := newRunView(run)
		view.Failures = failures
		return r.writeJSON(view, true)
	}

	r.writePlainHeader(fmt.Sprintf("Run #%d", run.Sequence()))
	r.writePlain("ID: %s\n", run.ID())
	r.writePlain("Status: %s\n", statusLabel(run.Status()))
	r.writePlain("Source: %s\n", run.SourceAddress())
	r.writePlain("Target: %s\n", run.TargetAddress())
	r.writePlain("Dry run: %t\n", run.DryRun())
	r.writePlain("Started: %s\n", formatTime(run.StartedAt()))
	r.writePlain("Completed: %s\n", formatTime(run.CompletedAt()))
	r.writePlain("Users: %d read, %d attempted, %d created, %d failed\n",
		run.UsersTotal(), run.UsersAttempted(), run.UsersCreated(), run.UsersFailed())
	if run.ExportPath() != "" {
		r.writePlain("Export: %s\n", run.ExportPath())
	}
	if run.ErrorMessage() != "" {
		r.writePlain("Error: %s\n", ui.Err(run.ErrorMessage()))
	}

	if len(failures) > 0 {
		r.writePlainln("Failed users:")
		for _, f := range failures {
			r.writePlain("  %d. %s (%s) %s\n", f.Position+1, f.Username, f.Reason, ui.Help(f.Message))
		}
	}
	return nil
}

// HistoryDelete soft-deletes a run; its rows stay in the database.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.historyRepository(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	id := cmd.String("id")
	if err := repo.Delete(id); err != nil {
		return err
	}

	r.logger.Info("run deleted", "run_id", id)
	return r.writePlain("%s\n", ui.OK("✓ Deleted run "+id))
}

func statusLabel(s models.RunStatus) string {
	switch s {
	case models.RunCompleted:
		return ui.OK(string(s))
	case models.RunFailed:
		return ui.Err(string(s))
	default:
		return ui.Warn(string(s))
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
