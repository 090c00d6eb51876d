package lifecycle

import (
	"context"
	"log/slog"

	"lumen/internal/domain"
	"lumen/internal/ports"
)

// How many rows a history listing materializes per call.
const recentLimit = 50

// Transitions a Test may take. Everything else, including any move out of
// a terminal state, is rejected.
var allowedFrom = map[domain.Status][]domain.Status{
	domain.StatusRunning:   {domain.StatusPending},
	domain.StatusCompleted: {domain.StatusPending, domain.StatusRunning},
	domain.StatusFailed:    {domain.StatusPending, domain.StatusRunning},
}

// Service owns the Test lifecycle: creation in pending, monotonic forward
// transitions, reads.
type Service struct {
	tests  ports.TestRepository
	logger *slog.Logger
}

func New(tests ports.TestRepository, logger *slog.Logger) *Service {
	return &Service{tests: tests, logger: logger}
}

// CreatePending creates a new Test in the pending state.
func (s *Service) CreatePending(ctx context.Context, domainID int64) (domain.Test, error) {
	return s.tests.CreateTest(ctx, domainID)
}

// Transition moves a Test forward. A transition to completed attaches the
// result fields atomically with the status write. Disallowed transitions
// return InvalidTransitionError; they indicate an ordering defect, not a
// user mistake.
func (s *Service) Transition(ctx context.Context, testID int64, to domain.Status, result *domain.AuditResult, errMsg string) error {
	from, ok := allowedFrom[to]
	if !ok {
		return &domain.InvalidTransitionError{TestID: testID, To: to}
	}
	if to != domain.StatusCompleted {
		result = nil
	}
	updated, current, err := s.tests.UpdateStatus(ctx, testID, from, to, result, errMsg)
	if err != nil {
		return err
	}
	if !updated {
		return &domain.InvalidTransitionError{TestID: testID, From: current, To: to}
	}
	return nil
}

// GetByID fetches a single Test; unknown ids yield ErrNotFound.
func (s *Service) GetByID(ctx context.Context, testID int64) (domain.Test, error) {
	return s.tests.GetByID(ctx, testID)
}

// ListRecent returns the owner's tests joined with their domains, newest
// first, materialized fresh on every call.
func (s *Service) ListRecent(ctx context.Context, ownerID string) ([]domain.TestWithDomain, error) {
	return s.tests.ListRecentByOwner(ctx, ownerID, recentLimit)
}

// ExpireStalePending force-fails the oldest pending Test of the given
// domain before a resubmission creates a new one. Scoped to the domain so
// a resubmission can never fail another owner's test.
func (s *Service) ExpireStalePending(ctx context.Context, domainID int64) error {
	testID, found, err := s.tests.OldestPendingForDomain(ctx, domainID)
	if err != nil || !found {
		return err
	}
	err = s.Transition(ctx, testID, domain.StatusFailed, nil, "superseded by a newer submission")
	if err != nil {
		// A worker may have claimed it between the read and the write.
		s.logger.Debug("stale pending expiry skipped", "test_id", testID, "error", err)
		return nil
	}
	s.logger.Info("expired stale pending test", "test_id", testID, "domain_id", domainID)
	return nil
}
