package syncruns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/internal/channel"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
)

// DefaultMessageLimit caps error_message so one bad feed cannot bloat the log.
const DefaultMessageLimit = 1000

// WindowPolicy bounds how far back a job looks when it fetches from the Channel.
type WindowPolicy struct {
	DefaultLookback time.Duration
	MaxLookback     time.Duration
	Overlap         time.Duration
}

type RecorderParams struct {
	Repo         Repository
	Logger       *logger.Logger
	Now          func() time.Time
	MessageLimit int
}

// Recorder writes the run log.
type Recorder struct {
	repo  Repository
	logg  *logger.Logger
	now   func() time.Time
	limit int
}

func NewRecorder(params RecorderParams) (*Recorder, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("sync run repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.MessageLimit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &Recorder{repo: params.Repo, logg: params.Logger, now: now, limit: limit}, nil
}

// Start opens a running entry for job.
func (r *Recorder) Start(ctx context.Context, job string) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:        uuid.New(),
		Job:       job,
		Status:    enums.SyncRunStatusRunning,
		StartedAt: r.now().UTC(),
	}
	if err := r.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("start sync run %s: %w", job, err)
	}
	return run, nil
}

// Finish closes run with the outcome of the job. A run error marks the run
// error; item failures without one mark it partial.
func (r *Recorder) Finish(ctx context.Context, run *models.SyncRun, summary batch.Summary, runErr error) (*models.SyncRun, error) {
	if run == nil {
		return nil, fmt.Errorf("sync run required")
	}
	finished := r.now().UTC()
	status := StatusFor(summary, runErr)

	var message *string
	switch {
	case runErr != nil:
		msg := batch.Truncate(runErr.Error(), r.limit)
		message = &msg
	case summary.HasFailures():
		msg := summary.FailureMessage(r.limit)
		message = &msg
	}

	duration := finished.Sub(run.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	values := map[string]any{
		"status":        status,
		"finished_at":   finished,
		"duration_ms":   duration,
		"processed":     summary.Processed,
		"succeeded":     summary.Succeeded,
		"skipped":       summary.Skipped,
		"failed":        summary.Failed,
		"error_message": message,
	}
	if err := r.repo.Finish(ctx, run.ID, values); err != nil {
		return nil, fmt.Errorf("finish sync run %s: %w", run.Job, err)
	}

	run.Status = status
	run.FinishedAt = &finished
	run.DurationMS = duration
	run.Processed = summary.Processed
	run.Succeeded = summary.Succeeded
	run.Skipped = summary.Skipped
	run.Failed = summary.Failed
	run.ErrorMessage = message
	return run, nil
}

// StatusFor maps a job outcome onto a run status.
func StatusFor(summary batch.Summary, runErr error) enums.SyncRunStatus {
	switch {
	case runErr != nil:
		return enums.SyncRunStatusError
	case summary.HasFailures():
		return enums.SyncRunStatusPartial
	default:
		return enums.SyncRunStatusSuccess
	}
}

// LastSuccessful returns the most recent successful run of job, or nil when there is none.
func (r *Recorder) LastSuccessful(ctx context.Context, job string) (*models.SyncRun, error) {
	run, err := r.repo.LastByStatus(ctx, job, enums.SyncRunStatusSuccess)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Window derives the fetch window for job ending now. It starts at the last
// successful run minus the overlap, never further back than the max lookback.
func (r *Recorder) Window(ctx context.Context, job string, policy WindowPolicy) (channel.Window, error) {
	end := r.now().UTC()
	last, err := r.LastSuccessful(ctx, job)
	if err != nil {
		return channel.Window{}, err
	}

	start := end.Add(-policy.DefaultLookback)
	if last != nil {
		start = last.StartedAt.UTC().Add(-policy.Overlap)
	}
	if policy.MaxLookback > 0 {
		if floor := end.Add(-policy.MaxLookback); start.Before(floor) {
			start = floor
		}
	}
	if start.After(end) {
		start = end
	}
	return channel.Window{Start: start, End: end}, nil
}
