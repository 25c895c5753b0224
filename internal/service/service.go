// Package service runs download jobs on a bounded queue and fronts the read-only lookups.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/downloader"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/internal/observability"
	"tubegrab/internal/progress"
	"tubegrab/internal/storage"
	"tubegrab/pkg/gen"
)

const workDirPattern = "job-*"

// MetadataFetcher returns metadata without downloading.
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) (*entity.VideoMetadata, error)
}

// Searcher finds videos by free text.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]entity.SearchResult, error)
}

// PlaylistLister lists the entries of a playlist.
type PlaylistLister interface {
	Entries(ctx context.Context, url string) ([]entity.PlaylistEntry, error)
}

// Lookups groups the read-only components the service delegates to.
type Lookups struct {
	Metadata MetadataFetcher
	Search   Searcher
	Playlist PlaylistLister
}

type job struct {
	log        *slog.Logger
	cfg        *config.Config
	jobQueue   chan *entity.Job
	storage    storage.Storer
	downloader downloader.Downloader
	lookups    Lookups
	metrics    *observability.Metrics

	// enqueueMu makes the duplicate check and the insert atomic.
	enqueueMu sync.Mutex

	runsMu sync.Mutex
	runs   map[string]run // job ID : in-flight run
	wg        sync.WaitGroup
	closed    atomic.Bool
	startOnce sync.Once
}

// Job is the application service used by the HTTP layer.
type Job interface {
	Start(ctx context.Context)
	Wait()

	Enqueue(ctx context.Context, req entity.MediaRequest) (*entity.Job, error)
	GetByID(ctx context.Context, id string) *entity.Job
	GetAll(ctx context.Context) ([]*entity.Job, error)
	File(ctx context.Context, id string) (*entity.DownloadOutcome, error)
	Delete(ctx context.Context, id string) error

	Info(ctx context.Context, url string) (*entity.VideoMetadata, error)
	Search(ctx context.Context, query string, limit int) ([]entity.SearchResult, error)
	Playlist(ctx context.Context, url string) ([]entity.PlaylistEntry, error)
}

var _ Job = (*job)(nil)

// run is one worker pass over a job. Delete cancels it.
type run struct {
	id     string
	cancel context.CancelFunc
}

// New creates the job service. Call Start to launch the workers.
func New(cfg *config.Config,
	log *slog.Logger,
	stg storage.Storer,
	dl downloader.Downloader,
	lookups Lookups,
	metrics *observability.Metrics,
) Job {
	return &job{
		log:        log.With(slog.String("package", "service")),
		cfg:        cfg,
		jobQueue:   make(chan *entity.Job, max(cfg.Job.QueueSize, 0)),
		storage:    stg,
		downloader: dl,
		lookups:    lookups,
		metrics:    metrics,
		runs:       make(map[string]run),
	}
}

// JobID derives the deterministic job id of a normalized request.
func JobID(req entity.MediaRequest) string {
	return gen.UUIDv5(req.URL, string(req.Kind), string(req.Container), req.Quality, strconv.FormatBool(req.Playlist))
}

func (svc *job) Start(ctx context.Context) {
	svc.startOnce.Do(func() {
		for i := range max(svc.cfg.Job.Workers, 1) {
			svc.wg.Add(1)

			go svc.worker(ctx, i)
		}

		svc.log.InfoContext(ctx, "workers started", slog.Int("workers", max(svc.cfg.Job.Workers, 1)))
	})
}

// Wait blocks until every worker has returned.
func (svc *job) Wait() {
	svc.wg.Wait()
}

func (svc *job) Enqueue(ctx context.Context, req entity.MediaRequest) (*entity.Job, error) {
	if svc.closed.Load() {
		return nil, errs.ErrServiceClosed
	}

	req = req.WithDefaults(svc.cfg.Download.DefaultVideoQuality, svc.cfg.Download.DefaultAudioQuality)

	if err := req.Validate(); err != nil {
		return nil, errs.New(errs.KindInvalidInput, "enqueue", err)
	}

	svc.enqueueMu.Lock()
	defer svc.enqueueMu.Unlock()

	id := JobID(req)

	if existing := svc.storage.GetJobByID(ctx, id); existing != nil && existing.Status != entity.JobStatusError {
		return existing, errs.ErrJobAlreadyExists
	}

	now := time.Now()
	job := &entity.Job{
		ID:        id,
		RunID:     gen.RequestID(),
		Request:   req,
		Status:    entity.JobStatusStarting,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(svc.cfg.Storage.TTL),
	}

	if err := svc.storage.SetJob(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	select {
	case svc.jobQueue <- job:
		svc.metrics.RecordJobCreated()
		svc.log.InfoContext(ctx, "job enqueued", slog.Any("job", job))

		return job, nil
	case <-ctx.Done():
		_ = svc.storage.DeleteJob(ctx, id)

		return nil, fmt.Errorf("enqueue job canceled: %w", ctx.Err())
	default:
		_ = svc.storage.SetJobOutcome(ctx, id, job.RunID, entity.DownloadOutcome{
			Error:     errs.ErrJobQueueFull.Error(),
			ErrorKind: errs.KindUnknown,
		})

		return nil, fmt.Errorf("%w: %d/%d", errs.ErrJobQueueFull, len(svc.jobQueue), cap(svc.jobQueue))
	}
}

func (svc *job) worker(ctx context.Context, workerID int) {
	defer svc.wg.Done()

	log := svc.log.With(slog.Int("worker_id", workerID))

	for {
		select {
		case job, ok := <-svc.jobQueue:
			if !ok {
				log.WarnContext(ctx, "job queue closed")

				return
			}

			if job == nil {
				log.WarnContext(ctx, "received nil job")

				continue
			}

			svc.processJob(ctx, job)
		case <-ctx.Done():
			svc.closed.Store(true)
			log.InfoContext(ctx, "got ctx done signal", slog.Any("error", ctx.Err()))

			return
		}
	}
}

func (svc *job) processJob(ctx context.Context, job *entity.Job) {
	log := svc.log.With(slog.String("func", "processJob"), slog.String("job_id", job.ID))

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if svc.cfg.Job.Timeout > 0 {
		var cancelTimeout context.CancelFunc

		jobCtx, cancelTimeout = context.WithTimeout(jobCtx, svc.cfg.Job.Timeout)
		defer cancelTimeout()
	}

	workDir, err := svc.startJob(ctx, job)
	if errors.Is(err, errs.ErrStaleRun) || errors.Is(err, errs.ErrJobNotFound) {
		// deleted, or deleted and enqueued again, while waiting in the queue
		log.DebugContext(ctx, "skip stale queue entry", slog.Any("error", err))

		return
	}

	observe := svc.metrics.JobTimer()
	defer observe()

	if err != nil {
		log.ErrorContext(ctx, "start job", slog.Any("error", err))
		svc.finishJob(ctx, job, "", entity.DownloadOutcome{Error: err.Error(), ErrorKind: errs.KindOf(err)})

		return
	}

	svc.trackRun(job, cancel)
	defer svc.untrackRun(job)

	tracker := progress.New(func(state entity.ProgressState) {
		_ = svc.storage.UpdateJobProgress(ctx, job.ID, job.RunID, state)
	})

	outcome := svc.downloader.Download(jobCtx, job.Request, workDir, tracker)

	svc.finishJob(ctx, job, workDir, outcome)

	log.DebugContext(ctx, "job processed", slog.Any("outcome", outcome))
}

func (svc *job) trackRun(job *entity.Job, cancel context.CancelFunc) {
	svc.runsMu.Lock()
	defer svc.runsMu.Unlock()

	svc.runs[job.ID] = run{id: job.RunID, cancel: cancel}
}

// untrackRun forgets the run unless a newer run of the same job replaced it.
func (svc *job) untrackRun(job *entity.Job) {
	svc.runsMu.Lock()
	defer svc.runsMu.Unlock()

	if r, ok := svc.runs[job.ID]; ok && r.id == job.RunID {
		delete(svc.runs, job.ID)
	}
}

func (svc *job) cancelRun(id string) {
	svc.runsMu.Lock()
	defer svc.runsMu.Unlock()

	if r, ok := svc.runs[id]; ok {
		r.cancel()
		delete(svc.runs, id)
	}
}

// startJob creates the job's work dir and marks the run downloading.
func (svc *job) startJob(ctx context.Context, job *entity.Job) (string, error) {
	stored := svc.storage.GetJobByID(ctx, job.ID)
	if stored == nil {
		return "", errs.ErrJobNotFound
	}

	if stored.RunID != job.RunID {
		return "", errs.ErrStaleRun
	}

	if err := os.MkdirAll(svc.cfg.Dir.Downloads, 0o755); err != nil {
		return "", errs.New(errs.KindUnknown, "create downloads dir", err)
	}

	workDir, err := os.MkdirTemp(svc.cfg.Dir.Downloads, workDirPattern)
	if err != nil {
		return "", errs.New(errs.KindUnknown, "create work dir", err)
	}

	if err := svc.storage.StartJob(ctx, job.ID, job.RunID, workDir); err != nil {
		_ = os.RemoveAll(workDir)

		return "", fmt.Errorf("start job: %w", err)
	}

	return workDir, nil
}

// finishJob stores the outcome of the run. The work dir is removed right away unless
// the job succeeded and still belongs to this run.
func (svc *job) finishJob(ctx context.Context, job *entity.Job, workDir string, outcome entity.DownloadOutcome) {
	log := svc.log.With(slog.String("job_id", job.ID))

	err := svc.storage.SetJobOutcome(ctx, job.ID, job.RunID, outcome)
	if errors.Is(err, errs.ErrJobNotFound) || errors.Is(err, errs.ErrStaleRun) {
		log.InfoContext(ctx, "job deleted while running", slog.Any("error", err))
		svc.metrics.RecordJobFailed()
		svc.removeWorkDir(ctx, workDir)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, "store outcome", slog.Any("error", err))
	}

	if outcome.Succeeded() {
		svc.metrics.RecordJobCompleted()
	} else {
		svc.metrics.RecordJobFailed()
		svc.removeWorkDir(ctx, workDir)
	}
}

func (svc *job) removeWorkDir(ctx context.Context, workDir string) {
	if workDir == "" {
		return
	}

	if err := os.RemoveAll(workDir); err != nil {
		svc.log.ErrorContext(ctx, "remove work dir", slog.String("work_dir", workDir), slog.Any("error", err))
	}
}

func (svc *job) GetByID(ctx context.Context, id string) *entity.Job {
	return svc.storage.GetJobByID(ctx, id)
}

func (svc *job) GetAll(ctx context.Context) ([]*entity.Job, error) {
	return svc.storage.GetJobs(ctx)
}

// File returns the outcome of a finished job.
func (svc *job) File(ctx context.Context, id string) (*entity.DownloadOutcome, error) {
	job := svc.storage.GetJobByID(ctx, id)
	if job == nil {
		return nil, errs.ErrJobNotFound
	}

	if job.Status != entity.JobStatusFinished || job.Outcome == nil || !job.Outcome.Succeeded() {
		return nil, errs.ErrJobNotFinished
	}

	return job.Outcome, nil
}

// Delete cancels the job's run, if any, and removes the job with its work dir.
func (svc *job) Delete(ctx context.Context, id string) error {
	svc.cancelRun(id)

	if err := svc.storage.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	svc.log.InfoContext(ctx, "job deleted", slog.String("job_id", id))

	return nil
}

func (svc *job) Info(ctx context.Context, url string) (*entity.VideoMetadata, error) {
	return svc.lookups.Metadata.Fetch(ctx, url)
}

func (svc *job) Search(ctx context.Context, query string, limit int) ([]entity.SearchResult, error) {
	return svc.lookups.Search.Search(ctx, query, limit)
}

func (svc *job) Playlist(ctx context.Context, url string) ([]entity.PlaylistEntry, error) {
	return svc.lookups.Playlist.Entries(ctx, url)
}
