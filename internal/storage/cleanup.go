package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tubegrab/internal/entity"
)

func (stg *storage) CleanupExpiredJobs(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := stg.log.With(slog.String("action", "cleanup_expired_jobs"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			stg.performCleanup(ctx)
		case <-ctx.Done():
			log.Info("cleanup expired jobs stopped")

			return
		}
	}
}

func (stg *storage) performCleanup(ctx context.Context) {
	log := stg.log
	now := time.Now()

	stg.mu.RLock()
	expiredIDs := stg.getExpiredJobs(now)
	stg.mu.RUnlock()

	if len(expiredIDs) == 0 {
		log.DebugContext(ctx, "no expired jobs found to clean up")

		return
	}

	log.InfoContext(ctx, "about to remove expired jobs", slog.Int("count", len(expiredIDs)))

	removed, dirs := 0, 0

	for _, id := range expiredIDs {
		// the job may have been re-enqueued since the scan
		found, removedDir := stg.removeJob(ctx, id, func(job *entity.Job) bool { return expired(job, now) })
		if found {
			removed++
		}

		if removedDir {
			dirs++
		}
	}

	stg.metrics.RecordCleanup(removed, dirs)
}

// getExpiredJobs must be called with stg.mu held.
func (stg *storage) getExpiredJobs(now time.Time) []string {
	var ids []string

	for id, job := range stg.jobs {
		if expired(job, now) {
			ids = append(ids, id)
		}
	}

	return ids
}

// expired reports whether the job outlived its TTL. In-flight jobs never expire.
func expired(job *entity.Job, now time.Time) bool {
	if job.Status == entity.JobStatusStarting || job.Status == entity.JobStatusDownloading {
		return false
	}

	return job.ExpiresAt.Before(now)
}

// removeJob deletes the job when match accepts it, then removes its work directory.
// A nil match accepts any job.
func (stg *storage) removeJob(ctx context.Context, id string, match func(job *entity.Job) bool) (found, removedDir bool) {
	stg.mu.Lock()

	job, ok := stg.jobs[id]
	if !ok || (match != nil && !match(job)) {
		stg.mu.Unlock()

		return false, false
	}

	workDir := job.WorkDir

	delete(stg.jobs, id)
	stg.metrics.SetStoredJobs(len(stg.jobs))
	stg.mu.Unlock()

	log := stg.log.With(slog.String("job_id", id))

	switch {
	case workDir == "":
	case !filepath.IsAbs(workDir):
		log.ErrorContext(ctx, "non-absolute work dir found", slog.String("work_dir", workDir))
	default:
		if err := os.RemoveAll(workDir); err != nil {
			log.ErrorContext(ctx, "failed to delete work dir", slog.String("work_dir", workDir), slog.Any("error", err))
		} else {
			removedDir = true
		}
	}

	log.DebugContext(ctx, "job cleaned up", slog.Bool("removed_dir", removedDir))

	return true, removedDir
}
