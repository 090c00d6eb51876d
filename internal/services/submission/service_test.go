package submission

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/domain"
)

type fakeRegistry struct {
	domain     domain.Domain
	err        error
	lastDevice string
}

func (r *fakeRegistry) Resolve(ctx context.Context, url, device, network, ownerID string) (domain.Domain, error) {
	r.lastDevice = device
	if r.err != nil {
		return domain.Domain{}, r.err
	}
	return r.domain, nil
}

type transitionCall struct {
	testID int64
	to     domain.Status
	errMsg string
}

type fakeLifecycle struct {
	nextTestID  int64
	expired     []int64
	transitions []transitionCall
	createErr   error
}

func (l *fakeLifecycle) CreatePending(ctx context.Context, domainID int64) (domain.Test, error) {
	if l.createErr != nil {
		return domain.Test{}, l.createErr
	}
	l.nextTestID++
	return domain.Test{ID: l.nextTestID, DomainID: domainID, Status: domain.StatusPending}, nil
}

func (l *fakeLifecycle) Transition(ctx context.Context, testID int64, to domain.Status, result *domain.AuditResult, errMsg string) error {
	l.transitions = append(l.transitions, transitionCall{testID: testID, to: to, errMsg: errMsg})
	return nil
}

func (l *fakeLifecycle) GetByID(ctx context.Context, testID int64) (domain.Test, error) {
	return domain.Test{}, domain.ErrNotFound
}

func (l *fakeLifecycle) ListRecent(ctx context.Context, ownerID string) ([]domain.TestWithDomain, error) {
	return nil, nil
}

func (l *fakeLifecycle) ExpireStalePending(ctx context.Context, domainID int64) error {
	l.expired = append(l.expired, domainID)
	return nil
}

type fakeJobs struct {
	enqueued []domain.AuditJob
	err      error
}

func (j *fakeJobs) Enqueue(ctx context.Context, job domain.AuditJob) (int64, error) {
	if j.err != nil {
		return 0, j.err
	}
	j.enqueued = append(j.enqueued, job)
	return int64(len(j.enqueued)), nil
}

func (j *fakeJobs) ClaimNext(ctx context.Context, lease time.Duration) (domain.AuditJob, bool, error) {
	return domain.AuditJob{}, false, nil
}
func (j *fakeJobs) SaveResult(ctx context.Context, jobID int64, result []byte) error { return nil }
func (j *fakeJobs) MarkCompleted(ctx context.Context, jobID int64) error             { return nil }
func (j *fakeJobs) MarkFailed(ctx context.Context, jobID int64, reason string) error { return nil }

func newService(registry *fakeRegistry, lc *fakeLifecycle, jobs *fakeJobs) *Service {
	return New(registry, lc, jobs, 3, slog.New(slog.DiscardHandler))
}

func TestSubmitHappyPath(t *testing.T) {
	registry := &fakeRegistry{domain: domain.Domain{ID: 11, Device: domain.DeviceDesktop, Network: "4g"}}
	lc := &fakeLifecycle{}
	jobs := &fakeJobs{}
	svc := newService(registry, lc, jobs)

	testID, err := svc.Submit(context.Background(), "user-1", "https://example.com", "Mobile", "3G")
	require.NoError(t, err)
	assert.Equal(t, int64(1), testID)

	// Stale pending expiry runs against the resolved domain before the new
	// test is created.
	assert.Equal(t, []int64{11}, lc.expired)

	// The job carries the submitted parameters, not the domain's
	// first-write-wins copies.
	require.Len(t, jobs.enqueued, 1)
	job := jobs.enqueued[0]
	assert.Equal(t, int64(1), job.TestID)
	assert.Equal(t, domain.DeviceMobile, job.Device)
	assert.Equal(t, "3g", job.Network)
	assert.Equal(t, 3, job.MaxAttempts)
}

func TestSubmitValidationShortCircuits(t *testing.T) {
	registry := &fakeRegistry{}
	lc := &fakeLifecycle{}
	jobs := &fakeJobs{}
	svc := newService(registry, lc, jobs)

	_, err := svc.Submit(context.Background(), "user-1", "not-a-url", "desktop", "none")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, lc.expired)
	assert.Empty(t, jobs.enqueued)
}

func TestSubmitRegistryErrorPropagates(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("store down")}
	svc := newService(registry, &fakeLifecycle{}, &fakeJobs{})

	_, err := svc.Submit(context.Background(), "user-1", "https://example.com", "desktop", "none")
	assert.Error(t, err)
}

func TestSubmitEnqueueFailureFailsTest(t *testing.T) {
	registry := &fakeRegistry{domain: domain.Domain{ID: 5}}
	lc := &fakeLifecycle{}
	jobs := &fakeJobs{err: errors.New("queue unavailable")}
	svc := newService(registry, lc, jobs)

	_, err := svc.Submit(context.Background(), "user-1", "https://example.com", "desktop", "none")
	require.Error(t, err)

	// The pending test must not be stranded.
	require.Len(t, lc.transitions, 1)
	assert.Equal(t, domain.StatusFailed, lc.transitions[0].to)
	assert.Equal(t, int64(1), lc.transitions[0].testID)
}
