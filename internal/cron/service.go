package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/metrics"
)

// RunLog records job runs.
type RunLog interface {
	Start(ctx context.Context, job string) (*models.SyncRun, error)
	Finish(ctx context.Context, run *models.SyncRun, summary batch.Summary, runErr error) (*models.SyncRun, error)
}

// ServiceParams configure the job runner.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	RunLog   RunLog
	Metrics  *metrics.SyncJobMetrics
	Now      func() time.Time
}

// Service executes registered jobs once each, the way a scheduler invocation expects.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockFactory
	runLog   RunLog
	metrics  *metrics.SyncJobMetrics
	now      func() time.Time
}

// NewService builds a job runner.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.RunLog == nil {
		return nil, fmt.Errorf("run log required")
	}
	locks := params.Locks
	if locks == nil {
		locks = NoopLocks
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    locks,
		runLog:   params.RunLog,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// RunOnce runs the named job. A held lock skips the run without error.
func (s *Service) RunOnce(ctx context.Context, name string) (*models.SyncRun, error) {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown job %q (known: %v)", name, s.registry.Names())
	}
	return s.runJob(ctx, job)
}

// RunAll runs every registered job in registration order. One job failing
// does not stop the others.
func (s *Service) RunAll(ctx context.Context) error {
	var errs error
	for _, job := range s.registry.Jobs() {
		if _, err := s.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) (*models.SyncRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	jobCtx := s.logg.WithJob(ctx, job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "sync.job")

	lock, err := s.locks(job.Name())
	if err != nil {
		return nil, fmt.Errorf("build lock: %w", err)
	}
	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		return nil, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(jobCtx, "another instance holds the job lock; skipping")
		return nil, nil
	}
	defer func() {
		if relErr := lock.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	run, err := s.runLog.Start(jobCtx, job.Name())
	if err != nil {
		return nil, err
	}
	jobCtx = s.logg.WithRunID(jobCtx, run.ID.String())
	s.logg.Info(jobCtx, "job start")

	start := s.now()
	summary, runErr := job.Run(jobCtx)
	duration := s.now().Sub(start)

	finished, finishErr := s.runLog.Finish(jobCtx, run, summary, runErr)
	if finishErr != nil {
		s.logg.Error(jobCtx, "failed to record sync run", finishErr)
	}
	s.observe(job.Name(), summary, duration, runErr)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": duration.Milliseconds(),
		"processed":   summary.Processed,
		"succeeded":   summary.Succeeded,
		"skipped":     summary.Skipped,
		"failed":      summary.Failed,
	})
	switch {
	case runErr != nil:
		s.logg.Error(s.logg.WithFields(jobCtx, pkgerrors.Dump(runErr).Fields()), "job failed", runErr)
	case summary.HasFailures():
		s.logg.Warn(s.logg.WithField(jobCtx, "failures", summary.FailureMessage(500)), "job completed with item failures")
	default:
		s.logg.Info(jobCtx, "job completed")
	}

	if finished == nil {
		finished = run
	}
	return finished, multierr.Combine(runErr, finishErr)
}

func (s *Service) observe(job string, summary batch.Summary, duration time.Duration, runErr error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
	s.metrics.ObserveSummary(job, summary)
	if runErr != nil {
		s.metrics.IncFailure(job)
		return
	}
	s.metrics.IncSuccess(job, s.now())
}
