package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/PaulBabatuyi/FileVault/internal/database"
	"github.com/PaulBabatuyi/FileVault/internal/observability"
	"github.com/PaulBabatuyi/FileVault/internal/storage"
)

// JobStore is the queue side the runner consumes from. Implemented by
// database.PostgresDB and database.MemoryStore.
type JobStore interface {
	NextPendingJob(ctx context.Context) (*database.DerivativeJob, error)
	RetryJob(ctx context.Context, jobID int64, reason string, delay time.Duration) error
	FailJob(ctx context.Context, jobID int64, reason string) error
	CompleteJob(ctx context.Context, jobID int64) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// FileLookup is the slice of the metadata store the pipeline reads.
type FileLookup interface {
	GetByID(ctx context.Context, id string) (*database.FileRecord, error)
}

type RunnerConfig struct {
	PollInterval  time.Duration
	BaseBackoff   time.Duration
	MaxRetries    int
	MaxConcurrent int64
	StaleAfter    time.Duration
}

// Runner polls the job store and processes derivative jobs. Delivery is
// at least once; processing is idempotent, so a job observed twice does
// no harm.
type Runner struct {
	config  RunnerConfig
	jobs    JobStore
	files   FileLookup
	store   storage.ByteStore
	proc    *ImageProcessor
	logger  *zap.Logger
	metrics *observability.Metrics
	sem     *semaphore.Weighted
	done    chan struct{}
}

func NewRunner(config RunnerConfig, jobs JobStore, files FileLookup, store storage.ByteStore,
	logger *zap.Logger, metrics *observability.Metrics, widths []int) *Runner {
	if config.PollInterval == 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.BaseBackoff == 0 {
		config.BaseBackoff = time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 5
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 4
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 5 * time.Minute
	}
	return &Runner{
		config:  config,
		jobs:    jobs,
		files:   files,
		store:   store,
		proc:    NewImageProcessor(store, widths),
		logger:  logger,
		metrics: metrics,
		sem:     semaphore.NewWeighted(config.MaxConcurrent),
		done:    make(chan struct{}),
	}
}

func (r *Runner) Start(ctx context.Context) {
	go r.run(ctx)
	r.logger.Info("derivative worker started",
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Int("max_retries", r.config.MaxRetries),
	)
}

// Stop signals shutdown and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	close(r.done)
	if err := r.sem.Acquire(context.Background(), r.config.MaxConcurrent); err == nil {
		r.sem.Release(r.config.MaxConcurrent)
	}
	r.logger.Info("derivative worker stopped")
}

func (r *Runner) run(ctx context.Context) {
	// Jobs left in processing by a crashed worker go back to pending.
	if n, err := r.jobs.ReclaimStale(ctx, r.config.StaleAfter); err != nil {
		r.logger.Error("reclaim stale jobs failed", zap.Error(err))
	} else if n > 0 {
		r.logger.Warn("reclaimed stale jobs", zap.Int64("count", n))
	}

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain claims due jobs and dispatches each to its own goroutine until
// the queue is empty. A slot is acquired before the claim, so at most
// MaxConcurrent jobs are in flight.
func (r *Runner) drain(ctx context.Context) {
	for {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		select {
		case <-r.done:
			r.sem.Release(1)
			return
		default:
		}

		job, err := r.jobs.NextPendingJob(ctx)
		if err != nil {
			r.sem.Release(1)
			r.logger.Error("claim job failed", zap.Error(err))
			return
		}
		if job == nil {
			r.sem.Release(1)
			return
		}

		go func() {
			defer r.sem.Release(1)
			r.process(ctx, job)
		}()
	}
}

// ProcessOnce claims a single due job and processes it synchronously,
// reporting whether a job was claimed.
func (r *Runner) ProcessOnce(ctx context.Context) (bool, error) {
	job, err := r.jobs.NextPendingJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.process(ctx, job)
	return true, nil
}

func (r *Runner) process(ctx context.Context, job *database.DerivativeJob) {
	log := r.logger.With(
		zap.Int64("job_id", job.ID),
		zap.String("file_id", job.FileID),
		zap.String("owner_id", job.OwnerID),
	)

	file, err := r.files.GetByID(ctx, job.FileID)
	if errors.Is(err, database.ErrNotFound) {
		r.fail(ctx, job, log, "file record missing")
		return
	}
	if err != nil {
		r.retry(ctx, job, log, fmt.Sprintf("load file record: %v", err))
		return
	}

	// Stale jobs may reference a file id reassigned to another owner.
	if file.OwnerID != job.OwnerID {
		r.fail(ctx, job, log, "owner mismatch")
		return
	}

	if file.Kind != database.KindImage {
		log.Info("skipping non-image job", zap.String("kind", string(file.Kind)))
		if err := r.jobs.CompleteJob(ctx, job.ID); err != nil {
			log.Error("complete job failed", zap.Error(err))
		}
		return
	}

	data, err := r.store.Read(file.StorageRef)
	if errors.Is(err, storage.ErrNotFound) {
		r.fail(ctx, job, log, "source bytes missing")
		return
	}
	if err != nil {
		r.retry(ctx, job, log, fmt.Sprintf("read source: %v", err))
		return
	}

	if err := r.proc.Generate(file.Name, file.StorageRef, data); err != nil {
		if errors.Is(err, ErrSourceMissing) {
			r.fail(ctx, job, log, err.Error())
			return
		}
		r.retry(ctx, job, log, err.Error())
		return
	}

	if err := r.jobs.CompleteJob(ctx, job.ID); err != nil {
		log.Error("complete job failed", zap.Error(err))
		return
	}
	r.metrics.JobsProcessed.Inc()
	log.Info("derivatives generated", zap.Ints("widths", r.proc.Widths()))
}

// fail marks a job permanently failed. The error log plus the failure
// counter are the operator-visible channel for permanent losses.
func (r *Runner) fail(ctx context.Context, job *database.DerivativeJob, log *zap.Logger, reason string) {
	r.metrics.JobsFailed.Inc()
	log.Error("job failed permanently", zap.String("reason", reason))
	if err := r.jobs.FailJob(ctx, job.ID, reason); err != nil {
		log.Error("mark job failed", zap.Error(err))
	}
}

// retry sends a job back with exponential backoff. MaxRetries bounds the
// retries after the first attempt; past it the job fails.
func (r *Runner) retry(ctx context.Context, job *database.DerivativeJob, log *zap.Logger, reason string) {
	if job.RetryCount >= r.config.MaxRetries {
		r.fail(ctx, job, log, "retries exhausted: "+reason)
		return
	}

	delay := r.config.BaseBackoff << uint(job.RetryCount)
	r.metrics.JobsRetried.Inc()
	log.Warn("job retry scheduled",
		zap.String("reason", reason),
		zap.Int("retry_count", job.RetryCount+1),
		zap.Duration("delay", delay),
	)
	if err := r.jobs.RetryJob(ctx, job.ID, reason, delay); err != nil {
		log.Error("requeue job failed", zap.Error(err))
	}
}
