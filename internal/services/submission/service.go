package submission

import (
	"context"
	"log/slog"
	"strings"

	"lumen/internal/audit"
	"lumen/internal/domain"
	"lumen/internal/ports"
)

// Attempts each retryable job step gets by default; overridden per-service
// from config.
const defaultMaxAttempts = 3

// Service is the synchronous submission path: resolve the audit target,
// expire a stale pending test for that target, create the new pending
// Test, and enqueue the asynchronous audit job. It never waits for the
// audit itself.
type Service struct {
	registry    ports.Registry
	lifecycle   ports.Lifecycle
	jobs        ports.JobRepository
	maxAttempts int
	logger      *slog.Logger
}

func New(registry ports.Registry, lifecycle ports.Lifecycle, jobs ports.JobRepository, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		registry:    registry,
		lifecycle:   lifecycle,
		jobs:        jobs,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Submit registers a test run and returns its id once the job is queued.
// The job snapshot carries the submitted device and network, not the
// Domain's first-write-wins copies, so every audit honors its own
// parameters.
func (s *Service) Submit(ctx context.Context, ownerID, url, device, network string) (int64, error) {
	dev, err := audit.ValidateTarget(url, device)
	if err != nil {
		return 0, err
	}
	network = strings.ToLower(strings.TrimSpace(network))

	d, err := s.registry.Resolve(ctx, url, device, network, ownerID)
	if err != nil {
		return 0, err
	}

	// A resubmission supersedes this domain's oldest still-pending test.
	if err := s.lifecycle.ExpireStalePending(ctx, d.ID); err != nil {
		return 0, err
	}

	test, err := s.lifecycle.CreatePending(ctx, d.ID)
	if err != nil {
		return 0, err
	}

	_, err = s.jobs.Enqueue(ctx, domain.AuditJob{
		TestID:      test.ID,
		URL:         url,
		Device:      dev,
		Network:     network,
		MaxAttempts: s.maxAttempts,
	})
	if err != nil {
		// The test would otherwise sit in pending forever.
		if ferr := s.lifecycle.Transition(ctx, test.ID, domain.StatusFailed, nil, "failed to enqueue audit job"); ferr != nil {
			s.logger.Error("could not fail unqueued test", "test_id", test.ID, "error", ferr)
		}
		return 0, err
	}

	s.logger.Info("test submitted",
		"test_id", test.ID,
		"domain_id", d.ID,
		"url", url,
		"device", string(dev),
		"network", network,
	)
	return test.ID, nil
}
