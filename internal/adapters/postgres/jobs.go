package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"lumen/internal/domain"
)

// JobRepository backed by an audit_jobs table claimed with SKIP LOCKED.

func (db *DB) Enqueue(ctx context.Context, job domain.AuditJob) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO audit_jobs (test_id, url, device, network, max_attempts)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `, job.TestID, job.URL, job.Device, job.Network, job.MaxAttempts).Scan(&id)
	return id, err
}

// ClaimNext locks the next runnable job and marks it running. A job is
// runnable when queued, or when running with an expired lease and attempts
// remaining; reclaiming leases gives the at-least-once contract after a
// worker crash.
func (db *DB) ClaimNext(ctx context.Context, lease time.Duration) (job domain.AuditJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        SELECT id, test_id, url, device, network, status, attempts, max_attempts, result, last_error, queued_at
        FROM audit_jobs
        WHERE status = 'queued'
           OR (status = 'running' AND started_at < now() - make_interval(secs => $1) AND attempts < max_attempts)
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `, lease.Seconds()).Scan(&job.ID, &job.TestID, &job.URL, &job.Device, &job.Network,
		&job.Status, &job.Attempts, &job.MaxAttempts, &job.Result, &job.LastError, &job.QueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}

	if _, err = tx.Exec(ctx, `
        UPDATE audit_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
    `, job.ID); err != nil {
		return job, false, err
	}
	job.Status = "running"
	job.Attempts++
	return job, true, nil
}

// SaveResult caches the audit step's serialized outcome on the job row so
// a retried persistence step can resume without re-running the audit.
func (db *DB) SaveResult(ctx context.Context, jobID int64, result []byte) error {
	_, err := db.Pool.Exec(ctx, `UPDATE audit_jobs SET result=$2 WHERE id=$1`, jobID, result)
	return err
}

func (db *DB) MarkCompleted(ctx context.Context, jobID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        UPDATE audit_jobs SET status='completed', finished_at=now() WHERE id=$1
    `, jobID)
	return err
}

func (db *DB) MarkFailed(ctx context.Context, jobID int64, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        UPDATE audit_jobs SET status='failed', finished_at=now(), last_error=$2 WHERE id=$1
    `, jobID, reason)
	return err
}
