package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/domain"
)

type fakeSubmitter struct {
	testID int64
	err    error
	last   struct{ ownerID, url, device, network string }
}

func (s *fakeSubmitter) Submit(ctx context.Context, ownerID, url, device, network string) (int64, error) {
	s.last.ownerID, s.last.url, s.last.device, s.last.network = ownerID, url, device, network
	if s.err != nil {
		return 0, s.err
	}
	return s.testID, nil
}

type fakeLifecycle struct {
	tests  map[int64]domain.Test
	recent []domain.TestWithDomain
}

func (l *fakeLifecycle) CreatePending(ctx context.Context, domainID int64) (domain.Test, error) {
	return domain.Test{}, nil
}

func (l *fakeLifecycle) Transition(ctx context.Context, testID int64, to domain.Status, result *domain.AuditResult, errMsg string) error {
	return nil
}

func (l *fakeLifecycle) GetByID(ctx context.Context, testID int64) (domain.Test, error) {
	t, ok := l.tests[testID]
	if !ok {
		return domain.Test{}, domain.ErrNotFound
	}
	return t, nil
}

func (l *fakeLifecycle) ListRecent(ctx context.Context, ownerID string) ([]domain.TestWithDomain, error) {
	return l.recent, nil
}

func (l *fakeLifecycle) ExpireStalePending(ctx context.Context, domainID int64) error { return nil }

type fakeExecutor struct {
	result domain.AuditResult
	err    error
}

func (e *fakeExecutor) Run(ctx context.Context, url, device, network string) (domain.AuditResult, error) {
	if e.err != nil {
		return domain.AuditResult{}, e.err
	}
	return e.result, nil
}

type fakeUsers struct {
	synced []domain.User
}

func (u *fakeUsers) Sync(ctx context.Context, user domain.User) error {
	u.synced = append(u.synced, user)
	return nil
}

func newTestServer(submitter *fakeSubmitter, lc *fakeLifecycle, exec *fakeExecutor, users *fakeUsers) *httptest.Server {
	if submitter == nil {
		submitter = &fakeSubmitter{testID: 1}
	}
	if lc == nil {
		lc = &fakeLifecycle{tests: map[int64]domain.Test{}}
	}
	if exec == nil {
		exec = &fakeExecutor{}
	}
	if users == nil {
		users = &fakeUsers{}
	}
	srv := New(submitter, lc, exec, users, HeaderUserSource{}, slog.New(slog.DiscardHandler))
	return httptest.NewServer(srv.Routes())
}

func postJSON(t *testing.T, url string, headers map[string]string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmitHappyPath(t *testing.T) {
	submitter := &fakeSubmitter{testID: 42}
	ts := newTestServer(submitter, nil, nil, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/tests/submit", map[string]string{"X-User-ID": "user-1"},
		map[string]string{"url": "https://example.com", "device": "desktop", "network": "4g"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[submitResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, int64(42), out.TestID)
	assert.Equal(t, "user-1", submitter.last.ownerID)
	assert.Equal(t, "4g", submitter.last.network)
}

func TestSubmitRequiresUser(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/tests/submit", nil,
		map[string]string{"url": "https://example.com", "device": "desktop", "network": "4g"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitValidationError(t *testing.T) {
	submitter := &fakeSubmitter{err: &domain.ValidationError{Msg: "URL cannot be empty"}}
	ts := newTestServer(submitter, nil, nil, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/tests/submit", map[string]string{"X-User-ID": "user-1"},
		map[string]string{"url": "", "device": "desktop", "network": "4g"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := decode[errorResponse](t, resp)
	assert.Equal(t, "URL cannot be empty", out.Message)
}

func TestSubmitUnexpectedErrorIsGeneric(t *testing.T) {
	submitter := &fakeSubmitter{err: assert.AnError}
	ts := newTestServer(submitter, nil, nil, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/tests/submit", map[string]string{"X-User-ID": "user-1"},
		map[string]string{"url": "https://example.com", "device": "desktop", "network": "4g"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// Internal detail never leaks to the caller.
	out := decode[errorResponse](t, resp)
	assert.Equal(t, "internal server error", out.Message)
}

func TestTestStatus(t *testing.T) {
	score := 88
	lc := &fakeLifecycle{tests: map[int64]domain.Test{
		7: {ID: 7, DomainID: 3, Status: domain.StatusCompleted, PerformanceScore: &score},
	}}
	ts := newTestServer(nil, lc, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/tests/7/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[testStatusResponse](t, resp)
	assert.Equal(t, int64(7), out.ID)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	require.NotNil(t, out.PerformanceScore)
	assert.Equal(t, 88, *out.PerformanceScore)
}

func TestTestStatusNotFound(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/tests/999999/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTestStatusInvalidID(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/tests/abc/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecentTests(t *testing.T) {
	lc := &fakeLifecycle{recent: []domain.TestWithDomain{
		{
			Test:   domain.Test{ID: 2, Status: domain.StatusCompleted},
			URL:    "https://example.com",
			Device: domain.DeviceDesktop,
		},
		{
			Test:   domain.Test{ID: 1, Status: domain.StatusFailed},
			URL:    "https://example.com",
			Device: domain.DeviceDesktop,
		},
	}}
	ts := newTestServer(nil, lc, nil, nil)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/tests/recent", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "user-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[map[string][]recentTestEntry](t, resp)
	require.Len(t, out["tests"], 2)
	assert.Equal(t, "https://example.com", out["tests"][0].URL)
}

func TestRecentTestsOwnerMismatch(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/tests/recent?userId=someone-else", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "user-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLighthouseInline(t *testing.T) {
	exec := &fakeExecutor{result: domain.AuditResult{PerformanceScore: 75}}
	ts := newTestServer(nil, nil, exec, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/lighthouse", nil,
		map[string]string{"url": "https://example.com", "device": "mobile", "network": "3g"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[map[string]json.RawMessage](t, resp)
	var results domain.AuditResult
	require.NoError(t, json.Unmarshal(out["results"], &results))
	assert.Equal(t, 75, results.PerformanceScore)
}

func TestLighthouseExecutionError(t *testing.T) {
	exec := &fakeExecutor{err: &domain.AuditExecutionError{Err: assert.AnError}}
	ts := newTestServer(nil, nil, exec, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/lighthouse", nil,
		map[string]string{"url": "https://unreachable.invalid", "device": "mobile", "network": "none"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUserSync(t *testing.T) {
	users := &fakeUsers{}
	ts := newTestServer(nil, nil, nil, users)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/users/sync", nil,
		map[string]string{"id": "user-1", "email": "u@example.com", "name": "U Ser"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, users.synced, 1)
	assert.Equal(t, "user-1", users.synced[0].ID)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
