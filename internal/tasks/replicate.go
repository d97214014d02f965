package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/umx/internal/device"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
	"golang.org/x/time/rate"
)

// Recorder receives migration measurements; metrics.Collector and metrics.Nop implement it.
type Recorder interface {
	Imported(n int)
	Created(latency time.Duration)
	Failed(reason models.FailureReason)
	Finished(at time.Time)
}

// ReplicateOptions tunes [Replicate]; the zero value creates every record as fast as the device answers.
type ReplicateOptions struct {
	DryRun   bool                  // validate and build payloads without calling create
	Limiter  *rate.Limiter         // bounds create calls per second
	Progress chan<- ProgressUpdate // one update per record; the consumer must drain it
	Recorder Recorder
	Logger   *log.Logger
}

// Replicate creates each record on the target, in order, one at a time.
//
// Invalid records and device rejections become per-item failures and the batch continues.
// A session-level failure (connection lost, protocol error, closed session) or a cancelled context
// stops the batch: the returned error wraps [shared.ErrReplication], the returned result keeps the
// items processed so far, and the item being created when it happened is not counted.
func Replicate(ctx context.Context, caller device.Caller, records []models.UserRecord, schema models.Schema, opts ReplicateOptions) (*models.BatchResult, error) {
	if err := schema.Require(models.FieldUsername, models.FieldPassword, models.FieldComment); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrReplication, err)
	}
	if caller == nil && !opts.DryRun {
		return nil, fmt.Errorf("%w: %w", shared.ErrReplication, shared.ErrSessionClosed)
	}

	result := &models.BatchResult{DryRun: opts.DryRun, Failures: []models.ItemFailure{}}
	total := len(records)

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %w", shared.ErrReplication, err)
		}

		if err := record.Validate(); err != nil {
			recordFailure(ctx, result, opts, i, total, models.ItemFailure{
				Position: i, Username: record.Username, Reason: models.ReasonInvalidRecord, Err: err,
			})
			continue
		}

		payload, err := record.Payload(schema)
		if err != nil {
			return result, fmt.Errorf("%w: %w", shared.ErrReplication, err)
		}

		if opts.DryRun {
			recordSuccess(ctx, result, opts, i, total, record.Username)
			continue
		}

		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return result, fmt.Errorf("%w: %w", shared.ErrReplication, err)
			}
		}

		start := time.Now()
		_, err = caller.Call(ctx, schema.Path, device.Create, payload)
		if err != nil {
			if device.IsTerminal(err) || ctx.Err() != nil {
				return result, fmt.Errorf("%w: stopped at user %q: %w", shared.ErrReplication, record.Username, err)
			}
			recordFailure(ctx, result, opts, i, total, createFailure(i, record.Username, err))
			continue
		}

		if opts.Recorder != nil {
			opts.Recorder.Created(time.Since(start))
		}
		recordSuccess(ctx, result, opts, i, total, record.Username)
	}

	return result, nil
}

// createFailure classifies a device rejection; a message mentioning "already" is a name collision.
func createFailure(pos int, username string, err error) models.ItemFailure {
	if strings.Contains(strings.ToLower(device.Message(err)), "already") {
		return models.ItemFailure{
			Position: pos,
			Username: username,
			Reason:   models.ReasonAlreadyExists,
			Err:      fmt.Errorf("%w: %w", shared.ErrAlreadyExists, err),
		}
	}
	return models.ItemFailure{
		Position: pos,
		Username: username,
		Reason:   models.ReasonCreateFailed,
		Err:      fmt.Errorf("%w: %w", shared.ErrCreate, err),
	}
}

func recordSuccess(ctx context.Context, result *models.BatchResult, opts ReplicateOptions, i, total int, username string) {
	result.Attempted++
	result.Succeeded++

	if opts.Logger != nil {
		opts.Logger.Debug("user created", "username", username, "dry_run", opts.DryRun)
	}
	sendProgress(ctx, opts.Progress, createUserUpdate(i+1, total, ItemOutcome{Username: username, Created: true}))
}

func recordFailure(ctx context.Context, result *models.BatchResult, opts ReplicateOptions, i, total int, f models.ItemFailure) {
	result.Attempted++
	result.Failures = append(result.Failures, f)

	if opts.Recorder != nil {
		opts.Recorder.Failed(f.Reason)
	}
	if opts.Logger != nil {
		opts.Logger.Warn("user not created", "username", f.Username, "reason", f.Reason, "err", f.Err)
	}
	sendProgress(ctx, opts.Progress, createUserUpdate(i+1, total, ItemOutcome{Username: f.Username, Failure: &f}))
}

// sendProgress delivers an update, waiting for the consumer unless ctx is done first.
func sendProgress(ctx context.Context, progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	case <-ctx.Done():
	}
}
