package ports

import (
	"context"

	"lumen/internal/domain"
)

// DomainRepository stores audit targets. Lookup is an exact match on
// (url, owner) with no URL normalization; callers depend on those
// semantics.
type DomainRepository interface {
	FindByURLAndOwner(ctx context.Context, url, ownerID string) (domain.Domain, bool, error)
	CreateDomain(ctx context.Context, d domain.Domain) (domain.Domain, error)
}

// TestRepository stores Test records. UpdateStatus performs the status
// write and any result attachment as a single atomic update guarded by the
// allowed source statuses, returning the status actually found when the
// guard rejects the write.
type TestRepository interface {
	CreateTest(ctx context.Context, domainID int64) (domain.Test, error)
	GetByID(ctx context.Context, testID int64) (domain.Test, error)
	UpdateStatus(ctx context.Context, testID int64, from []domain.Status, to domain.Status, result *domain.AuditResult, errMsg string) (updated bool, current domain.Status, err error)
	ListRecentByOwner(ctx context.Context, ownerID string, limit int) ([]domain.TestWithDomain, error)
	OldestPendingForDomain(ctx context.Context, domainID int64) (int64, bool, error)
}

// UserRepository upserts users on first login.
type UserRepository interface {
	Upsert(ctx context.Context, u domain.User) error
}
