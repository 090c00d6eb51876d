package auditrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"lumen/internal/domain"
	"lumen/internal/ports"
)

// Config bounds the runner. Workers is the number of claiming goroutines;
// Slots caps how many browser instances may be held at once, which is the
// real resource budget.
type Config struct {
	Workers      int
	Slots        int64
	Backoff      time.Duration
	JobTimeout   time.Duration
	PollInterval time.Duration
}

// Runner claims audit jobs and drives them through two separately
// retryable steps: run the audit, then persist the result. The audit
// step's outcome is cached on the job row, so a crash between the steps
// resumes at persistence without re-running the audit.
type Runner struct {
	jobs      ports.JobRepository
	lifecycle ports.Lifecycle
	executor  ports.Executor
	slots     *semaphore.Weighted
	cfg       Config
	logger    *slog.Logger
}

func New(jobs ports.JobRepository, lifecycle ports.Lifecycle, executor ports.Executor, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Runner{
		jobs:      jobs,
		lifecycle: lifecycle,
		executor:  executor,
		slots:     semaphore.NewWeighted(cfg.Slots),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts the dispatcher loop and worker goroutines. It returns when
// ctx is canceled.
func (r *Runner) Run(ctx context.Context) {
	jobsCh := make(chan domain.AuditJob, r.cfg.Workers)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobsCh)
				return
			case <-ticker.C:
				for {
					job, found, err := r.jobs.ClaimNext(ctx, r.cfg.JobTimeout)
					if err != nil {
						if ctx.Err() == nil {
							r.logger.Error("job claim error", "error", err)
						}
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						close(jobsCh)
						return
					}
				}
			}
		}
	}()

	// workers
	for i := 0; i < r.cfg.Workers; i++ {
		go func(idx int) {
			for job := range jobsCh {
				r.Process(ctx, job)
			}
		}(i)
	}
}

// Process drives one claimed job to a terminal outcome within the job
// timeout. Exported so an inline execution path can reuse the exact worker
// logic.
func (r *Runner) Process(ctx context.Context, job domain.AuditJob) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	logger := r.logger.With("job_id", job.ID, "test_id", job.TestID)

	if err := r.lifecycle.Transition(ctx, job.TestID, domain.StatusRunning, nil, ""); err != nil {
		var invalid *domain.InvalidTransitionError
		if !errors.As(err, &invalid) {
			r.failJob(ctx, logger, job, fmt.Errorf("mark running: %w", err))
			return
		}
		// Reclaimed job whose test is already running, or a test that was
		// force-failed while queued. Terminal tests get no further work.
		if invalid.From.Terminal() {
			_ = r.jobs.MarkFailed(ctx, job.ID, "test already in terminal state "+string(invalid.From))
			return
		}
	}

	// Step 1: run the audit, unless a prior attempt already cached it.
	result, ok, err := r.cachedResult(job)
	if err != nil {
		logger.Warn("discarding unreadable cached result", "error", err)
		ok = false
	}
	if !ok {
		result, err = r.runAuditStep(ctx, logger, job)
		if err != nil {
			r.failJob(ctx, logger, job, err)
			return
		}
		if raw, merr := json.Marshal(result); merr == nil {
			if serr := r.jobs.SaveResult(ctx, job.ID, raw); serr != nil {
				logger.Warn("could not cache audit result", "error", serr)
			}
		}
	}

	// Step 2: persist, retrying independently of the audit step.
	if err := r.persistStep(ctx, logger, job, result); err != nil {
		r.failJob(ctx, logger, job, err)
		return
	}

	if err := r.jobs.MarkCompleted(ctx, job.ID); err != nil {
		logger.Error("could not mark job completed", "error", err)
	}
	logger.Info("audit job completed", "performance_score", result.PerformanceScore)
}

func (r *Runner) cachedResult(job domain.AuditJob) (domain.AuditResult, bool, error) {
	if len(job.Result) == 0 {
		return domain.AuditResult{}, false, nil
	}
	var result domain.AuditResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return domain.AuditResult{}, false, err
	}
	return result, true, nil
}

// runAuditStep executes the audit with bounded retries and exponential
// backoff. The admission semaphore is held only while a browser may be
// alive, so queued jobs cannot launch unbounded heavyweight processes.
func (r *Runner) runAuditStep(ctx context.Context, logger *slog.Logger, job domain.AuditJob) (domain.AuditResult, error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return domain.AuditResult{}, &domain.AuditExecutionError{Err: err, Timeout: true}
	}
	defer r.slots.Release(1)

	var lastErr error
	for attempt := 1; attempt <= job.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := r.cfg.Backoff * time.Duration(1<<uint(attempt-2))
			select {
			case <-ctx.Done():
				return domain.AuditResult{}, lastErr
			case <-time.After(backoff):
			}
			logger.Info("retrying audit", "attempt", attempt)
		}

		result, err := r.executor.Run(ctx, job.URL, string(job.Device), job.Network)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !domain.Retryable(err) || ctx.Err() != nil {
			return domain.AuditResult{}, err
		}
		logger.Warn("audit attempt failed", "attempt", attempt, "error", err)
	}
	return domain.AuditResult{}, lastErr
}

func (r *Runner) persistStep(ctx context.Context, logger *slog.Logger, job domain.AuditJob, result domain.AuditResult) error {
	var lastErr error
	for attempt := 1; attempt <= job.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := r.cfg.Backoff * time.Duration(1<<uint(attempt-2))
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff):
			}
		}

		err := r.lifecycle.Transition(ctx, job.TestID, domain.StatusCompleted, &result, "")
		if err == nil {
			return nil
		}
		var invalid *domain.InvalidTransitionError
		if errors.As(err, &invalid) {
			// Ordering defect or concurrent finalization; retrying cannot help.
			return err
		}
		lastErr = err
		logger.Warn("persist attempt failed", "attempt", attempt, "error", err)
	}
	return lastErr
}

// failJob records terminal failure on the job and transitions the test to
// failed. The lifecycle guard makes the failed transition take effect at
// most once even if the job is ever reprocessed.
func (r *Runner) failJob(ctx context.Context, logger *slog.Logger, job domain.AuditJob, cause error) {
	// The job context may already be expired; finalize on a fresh one.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := r.jobs.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		logger.Error("could not mark job failed", "error", err)
	}
	if err := r.lifecycle.Transition(ctx, job.TestID, domain.StatusFailed, nil, cause.Error()); err != nil {
		var invalid *domain.InvalidTransitionError
		if errors.As(err, &invalid) && invalid.From.Terminal() {
			return
		}
		logger.Error("could not fail test", "error", err)
		return
	}
	logger.Info("audit job failed", "error", cause.Error())
}
