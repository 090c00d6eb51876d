package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"lumen/internal/domain"
)

const testColumns = `id, domain_id, status, performance_score, fcp, lcp, tbt, cls, full_report, error, created_at`

// DomainRepository

// FindByURLAndOwner matches the URL byte-for-byte; no normalization.
func (db *DB) FindByURLAndOwner(ctx context.Context, url, ownerID string) (domain.Domain, bool, error) {
	var d domain.Domain
	err := db.Pool.QueryRow(ctx, `
        SELECT id, url, device, network, owner_id, created_at
        FROM domains
        WHERE url = $1 AND owner_id = $2
        ORDER BY created_at
        LIMIT 1
    `, url, ownerID).Scan(&d.ID, &d.URL, &d.Device, &d.Network, &d.OwnerID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Domain{}, false, nil
	}
	if err != nil {
		return domain.Domain{}, false, err
	}
	return d, true, nil
}

func (db *DB) CreateDomain(ctx context.Context, d domain.Domain) (domain.Domain, error) {
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO domains (url, device, network, owner_id)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `, d.URL, d.Device, d.Network, d.OwnerID).Scan(&d.ID, &d.CreatedAt)
	return d, err
}

// TestRepository

func (db *DB) CreateTest(ctx context.Context, domainID int64) (domain.Test, error) {
	t := domain.Test{DomainID: domainID, Status: domain.StatusPending}
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO tests (domain_id, status)
        VALUES ($1, 'pending')
        RETURNING id, created_at
    `, domainID).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

func (db *DB) GetByID(ctx context.Context, testID int64) (domain.Test, error) {
	var t domain.Test
	err := db.Pool.QueryRow(ctx, `SELECT `+testColumns+` FROM tests WHERE id = $1`, testID).
		Scan(&t.ID, &t.DomainID, &t.Status, &t.PerformanceScore, &t.FCP, &t.LCP, &t.TBT, &t.CLS, &t.FullReport, &t.Error, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, domain.ErrNotFound
	}
	return t, err
}

// UpdateStatus writes the transition and any result fields in one atomic
// UPDATE guarded by the allowed source statuses. When the guard rejects the
// write it reports the status actually found so callers can build a
// precise error.
func (db *DB) UpdateStatus(ctx context.Context, testID int64, from []domain.Status, to domain.Status, result *domain.AuditResult, errMsg string) (bool, domain.Status, error) {
	fromSet := make([]string, len(from))
	for i, s := range from {
		fromSet[i] = string(s)
	}

	var tag int64
	var err error
	if result != nil {
		err = db.Pool.QueryRow(ctx, `
            UPDATE tests
            SET status = $2,
                performance_score = $3,
                fcp = $4, lcp = $5, tbt = $6, cls = $7,
                full_report = $8,
                error = $9
            WHERE id = $1 AND status = ANY($10)
            RETURNING id
        `, testID, to, result.PerformanceScore, result.FCP, result.LCP, result.TBT, result.CLS,
			result.FullReport, errMsg, fromSet).Scan(&tag)
	} else {
		err = db.Pool.QueryRow(ctx, `
            UPDATE tests
            SET status = $2, error = $3
            WHERE id = $1 AND status = ANY($4)
            RETURNING id
        `, testID, to, errMsg, fromSet).Scan(&tag)
	}
	if err == nil {
		return true, to, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, "", err
	}

	// Guard rejected or row missing; fetch the current status for the error.
	var current domain.Status
	err = db.Pool.QueryRow(ctx, `SELECT status FROM tests WHERE id = $1`, testID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", domain.ErrNotFound
	}
	return false, current, err
}

func (db *DB) ListRecentByOwner(ctx context.Context, ownerID string, limit int) ([]domain.TestWithDomain, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT t.id, t.domain_id, t.status, t.performance_score,
               t.fcp, t.lcp, t.tbt, t.cls, t.error, t.created_at,
               d.url, d.device, d.network, d.owner_id
        FROM tests t
        JOIN domains d ON d.id = t.domain_id
        WHERE d.owner_id = $1
        ORDER BY t.created_at DESC
        LIMIT $2
    `, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TestWithDomain
	for rows.Next() {
		var tw domain.TestWithDomain
		if err := rows.Scan(
			&tw.ID, &tw.DomainID, &tw.Status, &tw.PerformanceScore,
			&tw.FCP, &tw.LCP, &tw.TBT, &tw.CLS, &tw.Test.Error, &tw.CreatedAt,
			&tw.URL, &tw.Device, &tw.Network, &tw.OwnerID,
		); err != nil {
			return nil, err
		}
		out = append(out, tw)
	}
	return out, rows.Err()
}

func (db *DB) OldestPendingForDomain(ctx context.Context, domainID int64) (int64, bool, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
        SELECT id FROM tests
        WHERE domain_id = $1 AND status = 'pending'
        ORDER BY created_at
        LIMIT 1
    `, domainID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return id, err == nil, err
}

// UserRepository

func (db *DB) Upsert(ctx context.Context, u domain.User) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO users (id, email, name)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING
    `, u.ID, u.Email, u.Name)
	return err
}
