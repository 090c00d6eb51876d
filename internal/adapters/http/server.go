package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lumen/internal/domain"
	"lumen/internal/ports"
)

// Server exposes the submission, status and inline-audit API.
type Server struct {
	submitter Submitter
	lifecycle ports.Lifecycle
	executor  ports.Executor
	users     UserSyncer
	identity  ports.UserSource
	logger    *slog.Logger
}

// Submitter is the synchronous submission path.
type Submitter interface {
	Submit(ctx context.Context, ownerID, url, device, network string) (int64, error)
}

// UserSyncer upserts externally authenticated users.
type UserSyncer interface {
	Sync(ctx context.Context, u domain.User) error
}

func New(submitter Submitter, lifecycle ports.Lifecycle, executor ports.Executor, users UserSyncer, identity ports.UserSource, logger *slog.Logger) *Server {
	return &Server{
		submitter: submitter,
		lifecycle: lifecycle,
		executor:  executor,
		users:     users,
		identity:  identity,
		logger:    logger,
	}
}

// Routes returns the chi router for the API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/tests/submit", s.handleSubmit)
		r.Get("/tests/{id}/status", s.handleTestStatus)
		r.Get("/tests/recent", s.handleRecentTests)
		r.Post("/lighthouse", s.handleLighthouse)
		r.Post("/users/sync", s.handleUserSync)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequest struct {
	URL     string `json:"url"`
	Device  string `json:"device"`
	Network string `json:"network"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	TestID  int64  `json:"testId"`
	Message string `json:"message"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.identity.CurrentUser(r)
	if err != nil {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &domain.ValidationError{Msg: "failed to parse JSON request body"})
		return
	}

	testID, err := s.submitter.Submit(r.Context(), ownerID, req.URL, req.Device, req.Network)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success: true,
		TestID:  testID,
		Message: "test submitted",
	})
}

type testStatusResponse struct {
	ID               int64         `json:"id"`
	DomainID         int64         `json:"domainId"`
	Status           domain.Status `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	PerformanceScore *int          `json:"performanceScore"`
	FCP              *float64      `json:"fcp"`
	LCP              *float64      `json:"lcp"`
	TBT              *float64      `json:"tbt"`
	CLS              *float64      `json:"cls"`
	Error            string        `json:"error,omitempty"`
}

func statusResponseFromTest(t domain.Test) testStatusResponse {
	return testStatusResponse{
		ID:               t.ID,
		DomainID:         t.DomainID,
		Status:           t.Status,
		CreatedAt:        t.CreatedAt,
		PerformanceScore: t.PerformanceScore,
		FCP:              t.FCP,
		LCP:              t.LCP,
		TBT:              t.TBT,
		CLS:              t.CLS,
		Error:            t.Error,
	}
}

func (s *Server) handleTestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, &domain.ValidationError{Msg: "invalid test ID"})
		return
	}
	test, err := s.lifecycle.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponseFromTest(test))
}

type recentTestEntry struct {
	testStatusResponse
	URL     string        `json:"url"`
	Device  domain.Device `json:"device"`
	Network string        `json:"network"`
}

func (s *Server) handleRecentTests(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.identity.CurrentUser(r)
	if err != nil {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}
	// The userId parameter is kept for compatibility, but callers may only
	// list their own tests.
	if qid := r.URL.Query().Get("userId"); qid != "" && qid != ownerID {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	tests, err := s.lifecycle.ListRecent(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries := make([]recentTestEntry, 0, len(tests))
	for _, t := range tests {
		entries = append(entries, recentTestEntry{
			testStatusResponse: statusResponseFromTest(t.Test),
			URL:                t.URL,
			Device:             t.Device,
			Network:            t.Network,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": entries})
}

type lighthouseRequest struct {
	URL     string `json:"url"`
	Device  string `json:"device"`
	Network string `json:"network"`
}

// handleLighthouse runs the executor inline and returns the result. This
// is the audit invocation surface the dispatcher's contract describes; the
// in-process workers call the executor directly.
func (s *Server) handleLighthouse(w http.ResponseWriter, r *http.Request) {
	var req lighthouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &domain.ValidationError{Msg: "failed to parse JSON request body"})
		return
	}
	if req.Network == "" {
		req.Network = "none"
	}

	result, err := s.executor.Run(r.Context(), req.URL, req.Device, req.Network)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": result,
	})
}

type userSyncRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) handleUserSync(w http.ResponseWriter, r *http.Request) {
	var req userSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &domain.ValidationError{Msg: "failed to parse JSON request body"})
		return
	}
	if err := s.users.Sync(r.Context(), domain.User{ID: req.ID, Email: req.Email, Name: req.Name}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeError maps the error taxonomy onto HTTP statuses. Unexpected errors
// are logged with full detail and reported with a generic message only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	var config *domain.ConfigError
	var conflict *domain.ConflictError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: validation.Msg})
	case errors.As(err, &config):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: config.Msg})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "not found"})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Message: conflict.Msg})
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
