// Package storage keeps jobs in memory and removes them, with their files, once they expire.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/internal/observability"
)

// Storer defines the interface for storage operations.
// Getters return copies so callers never share memory with the store.
type Storer interface {
	SetJob(ctx context.Context, job *entity.Job) error
	GetJobByID(ctx context.Context, id string) *entity.Job
	GetJobs(ctx context.Context) ([]*entity.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status entity.JobStatus) error
	StartJob(ctx context.Context, id, runID, workDir string) error
	UpdateJobProgress(ctx context.Context, id, runID string, state entity.ProgressState) error
	SetJobOutcome(ctx context.Context, id, runID string, outcome entity.DownloadOutcome) error
	DeleteJob(ctx context.Context, id string) error

	CleanupExpiredJobs(ctx context.Context, interval time.Duration)
}

type storage struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics

	mu   sync.RWMutex
	jobs map[string]*entity.Job // job ID : job
}

// New creates a new in-memory storage instance and starts its cleanup loop.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) Storer {
	stg := &storage{
		log:     log.With(slog.String("package", "storage")),
		cfg:     cfg,
		metrics: metrics,
		jobs:    make(map[string]*entity.Job),
	}

	if cfg.Storage.CleanupInterval > 0 {
		go stg.CleanupExpiredJobs(ctx, cfg.Storage.CleanupInterval)
	}

	return stg
}

func (stg *storage) SetJob(ctx context.Context, job *entity.Job) error {
	if job == nil || job.ID == "" {
		stg.log.ErrorContext(ctx, "set job: nil job")

		return errs.ErrJobNil
	}

	stg.mu.Lock()
	defer stg.mu.Unlock()

	stg.jobs[job.ID] = clone(job)
	stg.metrics.SetStoredJobs(len(stg.jobs))

	return nil
}

func (stg *storage) GetJobByID(_ context.Context, id string) *entity.Job {
	stg.mu.RLock()
	defer stg.mu.RUnlock()

	job, ok := stg.jobs[id]
	if !ok {
		return nil
	}

	return clone(job)
}

func (stg *storage) GetJobs(_ context.Context) ([]*entity.Job, error) {
	stg.mu.RLock()
	defer stg.mu.RUnlock()

	if len(stg.jobs) == 0 {
		return nil, errs.ErrNoJobs
	}

	jobs := make([]*entity.Job, 0, len(stg.jobs))
	for _, job := range stg.jobs {
		jobs = append(jobs, clone(job))
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	return jobs, nil
}

func (stg *storage) UpdateJobStatus(ctx context.Context, id string, status entity.JobStatus) error {
	stg.mu.Lock()
	defer stg.mu.Unlock()

	job, ok := stg.jobs[id]
	if !ok {
		return fmt.Errorf("update job %s: %w", id, errs.ErrJobNotFound)
	}

	return stg.apply(ctx, job, func(job *entity.Job) error {
		job.Status = status

		return nil
	})
}

// StartJob marks the run as downloading in workDir. It fails with errs.ErrStaleRun
// unless the stored job is still starting under runID.
func (stg *storage) StartJob(ctx context.Context, id, runID, workDir string) error {
	return stg.update(ctx, id, runID, func(job *entity.Job) error {
		if job.Status != entity.JobStatusStarting {
			return fmt.Errorf("start job %s in status %s: %w", id, job.Status, errs.ErrStaleRun)
		}

		job.WorkDir = workDir
		job.Status = entity.JobStatusDownloading

		return nil
	})
}

func (stg *storage) UpdateJobProgress(ctx context.Context, id, runID string, state entity.ProgressState) error {
	return stg.update(ctx, id, runID, func(job *entity.Job) error {
		job.Progress = state

		return nil
	})
}

// SetJobOutcome stores the terminal outcome and derives the final status from it.
// The TTL restarts once the job is done.
func (stg *storage) SetJobOutcome(ctx context.Context, id, runID string, outcome entity.DownloadOutcome) error {
	return stg.update(ctx, id, runID, func(job *entity.Job) error {
		job.Outcome = &outcome
		job.ExpiresAt = time.Now().Add(stg.cfg.Storage.TTL)
		job.Error = outcome.Error
		job.ErrorKind = outcome.ErrorKind

		if outcome.Succeeded() {
			job.Status = entity.JobStatusFinished
		} else {
			job.Status = entity.JobStatusError
		}

		return nil
	})
}

func (stg *storage) DeleteJob(ctx context.Context, id string) error {
	if found, _ := stg.removeJob(ctx, id, nil); !found {
		return errs.ErrJobNotFound
	}

	return nil
}

// update applies fn to the job only while it still belongs to runID.
func (stg *storage) update(ctx context.Context, id, runID string, fn func(job *entity.Job) error) error {
	stg.mu.Lock()
	defer stg.mu.Unlock()

	job, ok := stg.jobs[id]
	if !ok {
		return fmt.Errorf("update job %s: %w", id, errs.ErrJobNotFound)
	}

	if job.RunID != runID {
		return fmt.Errorf("update job %s: %w", id, errs.ErrStaleRun)
	}

	return stg.apply(ctx, job, fn)
}

// apply must be called with stg.mu held.
func (stg *storage) apply(ctx context.Context, job *entity.Job, fn func(job *entity.Job) error) error {
	if err := fn(job); err != nil {
		return err
	}

	job.UpdatedAt = time.Now()

	stg.log.DebugContext(ctx, "job updated", slog.Any("job", job))

	return nil
}

func clone(job *entity.Job) *entity.Job {
	cp := *job
	if job.Outcome != nil {
		outcome := *job.Outcome
		cp.Outcome = &outcome
	}

	return &cp
}
