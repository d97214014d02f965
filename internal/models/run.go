package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/umx/internal/shared"
)

// RunStatus is the lifecycle state of a [Run].
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one migration run for the history commands.
type Run struct {
	id             string
	sequence       int
	sourceAddress  string
	targetAddress  string
	status         RunStatus
	dryRun         bool
	usersTotal     int
	usersAttempted int
	usersCreated   int
	usersFailed    int
	exportPath     string
	errorMessage   string
	startedAt      *time.Time
	completedAt    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewRun creates a running [Run] between two device addresses.
func NewRun(sequence int, sourceAddress, targetAddress string, dryRun bool) *Run {
	now := time.Now()
	return &Run{
		sequence:      sequence,
		sourceAddress: sourceAddress,
		targetAddress: targetAddress,
		status:        RunRunning,
		dryRun:        dryRun,
		startedAt:     &now,
		createdAt:     now,
		updatedAt:     now,
	}
}

func (r *Run) ID() string              { return r.id }
func (r *Run) Sequence() int           { return r.sequence }
func (r *Run) SourceAddress() string   { return r.sourceAddress }
func (r *Run) TargetAddress() string   { return r.targetAddress }
func (r *Run) Status() RunStatus       { return r.status }
func (r *Run) DryRun() bool            { return r.dryRun }
func (r *Run) UsersTotal() int         { return r.usersTotal }
func (r *Run) UsersAttempted() int     { return r.usersAttempted }
func (r *Run) UsersCreated() int       { return r.usersCreated }
func (r *Run) UsersFailed() int        { return r.usersFailed }
func (r *Run) ExportPath() string      { return r.exportPath }
func (r *Run) ErrorMessage() string    { return r.errorMessage }
func (r *Run) StartedAt() *time.Time   { return r.startedAt }
func (r *Run) CompletedAt() *time.Time { return r.completedAt }
func (r *Run) CreatedAt() time.Time    { return r.createdAt }
func (r *Run) UpdatedAt() time.Time    { return r.updatedAt }
func (r *Run) DeletedAt() *time.Time   { return r.deletedAt }

func (r *Run) SetID(id string)             { r.id = id }
func (r *Run) SetSequence(seq int)         { r.sequence = seq }
func (r *Run) SetStatus(s RunStatus)       { r.status = s }
func (r *Run) SetUsersTotal(n int)         { r.usersTotal = n }
func (r *Run) SetExportPath(p string)      { r.exportPath = p }
func (r *Run) SetErrorMessage(msg string)  { r.errorMessage = msg }
func (r *Run) SetStartedAt(t *time.Time)   { r.startedAt = t }
func (r *Run) SetCompletedAt(t *time.Time) { r.completedAt = t }
func (r *Run) SetCreatedAt(t time.Time)    { r.createdAt = t }
func (r *Run) SetUpdatedAt(t time.Time)    { r.updatedAt = t }
func (r *Run) SetDeletedAt(t *time.Time)   { r.deletedAt = t }
func (r *Run) SetDryRun(dryRun bool)       { r.dryRun = dryRun }

// SetCounts sets the replication counters.
func (r *Run) SetCounts(attempted, created, failed int) {
	r.usersAttempted, r.usersCreated, r.usersFailed = attempted, created, failed
}

// ApplyBatch copies the counters of a replication result onto the run.
func (r *Run) ApplyBatch(b *BatchResult) {
	if b == nil {
		return
	}
	r.SetCounts(b.Attempted, b.Succeeded, b.Failed())
}

// Complete marks the run finished; a non-nil err marks it failed with the error text.
func (r *Run) Complete(err error) {
	now := time.Now()
	r.completedAt = &now
	r.updatedAt = now
	if err != nil {
		r.status = RunFailed
		r.errorMessage = err.Error()
		return
	}
	r.status = RunCompleted
}

// Duration returns the elapsed time between start and completion, or zero while running.
func (r *Run) Duration() time.Duration {
	if r.startedAt == nil || r.completedAt == nil {
		return 0
	}
	return r.completedAt.Sub(*r.startedAt)
}

// Validate checks that the run can be persisted.
func (r *Run) Validate() error {
	if strings.TrimSpace(r.sourceAddress) == "" {
		return fmt.Errorf("%w: run source address is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(r.targetAddress) == "" {
		return fmt.Errorf("%w: run target address is required", shared.ErrInvalidInput)
	}
	switch r.status {
	case RunRunning, RunCompleted, RunFailed:
	default:
		return fmt.Errorf("%w: unknown run status %q", shared.ErrInvalidInput, r.status)
	}
	if r.usersAttempted < 0 || r.usersCreated < 0 || r.usersFailed < 0 || r.usersTotal < 0 {
		return fmt.Errorf("%w: run counters must not be negative", shared.ErrInvalidInput)
	}
	if r.usersCreated+r.usersFailed > r.usersAttempted {
		return fmt.Errorf("%w: created and failed exceed attempted", shared.ErrInvalidInput)
	}
	return nil
}

// RunFailure is a persisted per-item failure of a run.
type RunFailure struct {
	RunID    string        `json:"run_id"`
	Position int           `json:"position"`
	Username string        `json:"username"`
	Reason   FailureReason `json:"reason"`
	Message  string        `json:"message"`
}

// FailuresFromBatch converts batch failures into persistable rows.
func FailuresFromBatch(runID string, b *BatchResult) []RunFailure {
	if b == nil {
		return nil
	}
	out := make([]RunFailure, len(b.Failures))
	for i, f := range b.Failures {
		out[i] = RunFailure{
			RunID:    runID,
			Position: f.Position,
			Username: f.Username,
			Reason:   f.Reason,
			Message:  f.Message(),
		}
	}
	return out
}
