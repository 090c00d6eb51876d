package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lumen/internal/domain"
)

// ErrPollTimeout means the maximum wait elapsed before the test reached a
// terminal state. The audit may still complete later; this is distinct
// from the test failing.
var ErrPollTimeout = errors.New("timed out waiting for test to finish")

// TestGetter reads a test's current state. Satisfied by the lifecycle
// service in-process and by Client over HTTP.
type TestGetter interface {
	GetByID(ctx context.Context, testID int64) (domain.Test, error)
}

// Poller watches a single test until it reaches a terminal state or the
// maximum wait elapses. Requests are strictly sequential: each poll waits
// for the previous response, so there is no request pile-up.
type Poller struct {
	getter   TestGetter
	interval time.Duration
	maxWait  time.Duration
	logger   *slog.Logger
}

func New(getter TestGetter, interval, maxWait time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 300 * time.Second
	}
	return &Poller{getter: getter, interval: interval, maxWait: maxWait, logger: logger}
}

// Wait polls until the test is completed or failed, returning the final
// Test. It returns ErrPollTimeout when maxWait elapses first, and ctx's
// error when the owner cancels between polls. Canceling the poller never
// cancels the audit itself.
func (p *Poller) Wait(ctx context.Context, testID int64) (domain.Test, error) {
	deadline := time.Now().Add(p.maxWait)

	for {
		test, err := p.getter.GetByID(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}
		if test.Status.Terminal() {
			return test, nil
		}
		if time.Now().Add(p.interval).After(deadline) {
			p.logger.Debug("poll wait exhausted", "test_id", testID, "status", string(test.Status))
			return test, ErrPollTimeout
		}

		select {
		case <-ctx.Done():
			return test, ctx.Err()
		case <-time.After(p.interval):
		}
	}
}
