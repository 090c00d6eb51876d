package ports

import (
	"context"
	"net/http"

	"lumen/internal/domain"
)

// Registry deduplicates (url, owner) pairs into stable Domain identities.
type Registry interface {
	Resolve(ctx context.Context, url, device, network, ownerID string) (domain.Domain, error)
}

// Lifecycle manages Test records from creation to a terminal state.
type Lifecycle interface {
	CreatePending(ctx context.Context, domainID int64) (domain.Test, error)
	Transition(ctx context.Context, testID int64, to domain.Status, result *domain.AuditResult, errMsg string) error
	GetByID(ctx context.Context, testID int64) (domain.Test, error)
	ListRecent(ctx context.Context, ownerID string) ([]domain.TestWithDomain, error)
	ExpireStalePending(ctx context.Context, domainID int64) error
}

// Executor runs one performance audit against a browser instance.
type Executor interface {
	Run(ctx context.Context, url string, device string, network string) (domain.AuditResult, error)
}

// UserSource resolves the caller's identity. Authentication itself is an
// external collaborator; this core only needs an opaque user id.
type UserSource interface {
	CurrentUser(r *http.Request) (string, error)
}
