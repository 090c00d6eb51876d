package ports

import (
	"context"
	"time"

	"lumen/internal/domain"
)

// JobRepository supports enqueueing, claiming and finalizing audit jobs.
// ClaimNext also reclaims running jobs whose lease expired, giving the
// at-least-once execution contract.
type JobRepository interface {
	Enqueue(ctx context.Context, job domain.AuditJob) (int64, error)
	ClaimNext(ctx context.Context, lease time.Duration) (domain.AuditJob, bool, error)
	SaveResult(ctx context.Context, jobID int64, result []byte) error
	MarkCompleted(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, reason string) error
}
