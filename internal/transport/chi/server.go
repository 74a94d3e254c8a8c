package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coursedex/internal/domain"
	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
	"github.com/kailas-cloud/coursedex/internal/domain/event"
	logpkg "github.com/kailas-cloud/coursedex/internal/logger"
	"github.com/kailas-cloud/coursedex/internal/repository/deadletter"
	healthuc "github.com/kailas-cloud/coursedex/internal/usecase/health"
)

// maxHookBody caps lifecycle hook payloads.
const maxHookBody = 1 << 20

// CourseSearcher ranks catalog courses.
type CourseSearcher interface {
	Search(ctx context.Context, term string, limit int) ([]course.Summary, error)
}

// CategoryService searches and reads category documents.
type CategoryService interface {
	SearchCategories(ctx context.Context, kind course.Kind, term string, limit int) ([]category.Document, error)
	TopCategories(ctx context.Context, kind course.Kind, n int) ([]category.Document, error)
	GetCategory(ctx context.Context, kind course.Kind, id string) (category.Document, error)
}

// CounterHandler applies course lifecycle events to category counters.
type CounterHandler interface {
	OnCreated(ctx context.Context, eventID string, c course.Course) event.Report
	OnUpdated(ctx context.Context, eventID string, before, after course.Course) event.Report
	OnDeleted(ctx context.Context, eventID string, c course.Course) event.Report
}

// FailureLister lists dropped counter updates.
type FailureLister interface {
	List(ctx context.Context, limit int) ([]deadletter.Entry, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Deps are the services behind the HTTP API. Failures may be nil.
type Deps struct {
	Courses    CourseSearcher
	Categories CategoryService
	Counters   CounterHandler
	Failures   FailureLister
	Health     HealthChecker
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the coursedex HTTP API.
type Server struct {
	deps          Deps
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrUnknownKind, http.StatusNotFound, ErrorCodeUnknownKind),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, ErrorCodeValidation),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited),
	}
	return s
}

// SearchCourses handles GET /search_courses. Search never fails from the
// client's point of view: errors are logged and answered with [].
func (s *Server) SearchCourses(w http.ResponseWriter, r *http.Request) {
	term, limit := s.bindSearchParams(r)

	items, err := s.deps.Courses.Search(r.Context(), term, limit)
	if err != nil {
		s.log(r).Warn("Course search failed, returning empty result",
			zap.String("term", term), zap.Error(err))
		items = nil
	}
	if items == nil {
		items = []course.Summary{}
	}
	writeJSON(w, http.StatusOK, items)
}

// SearchCategories handles GET /search_categories/{collection}.
func (s *Server) SearchCategories(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.bindCollection(w, r)
	if !ok {
		return
	}
	term, limit := s.bindSearchParams(r)

	docs, err := s.deps.Categories.SearchCategories(r.Context(), kind, term, limit)
	if err != nil {
		s.log(r).Error("Category search failed, returning empty result",
			zap.String("kind", string(kind)), zap.String("term", term), zap.Error(err))
		docs = nil
	}
	if docs == nil {
		docs = []category.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// TopCategories handles GET /v1/categories/{collection}.
func (s *Server) TopCategories(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.bindCollection(w, r)
	if !ok {
		return
	}
	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid limit")
		return
	}

	docs, err := s.deps.Categories.TopCategories(r.Context(), kind, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// GetCategory handles GET /v1/categories/{collection}/{id}.
func (s *Server) GetCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.bindCollection(w, r)
	if !ok {
		return
	}
	var id string
	err := runtime.BindStyledParameterWithLocation("simple", false, "id",
		runtime.ParamLocationPath, chi.URLParam(r, "id"), &id)
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid id")
		return
	}

	doc, err := s.deps.Categories.GetCategory(r.Context(), kind, id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CourseCreated handles POST /hooks/courses/created.
func (s *Server) CourseCreated(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHook(w, r)
	if !ok {
		return
	}
	c, ok := decodeCourse(w, "course", req.Course)
	if !ok {
		return
	}
	s.writeReport(w, r, s.deps.Counters.OnCreated(r.Context(), req.EventID, c))
}

// CourseUpdated handles POST /hooks/courses/updated.
func (s *Server) CourseUpdated(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHook(w, r)
	if !ok {
		return
	}
	before, ok := decodeCourse(w, "before", req.Before)
	if !ok {
		return
	}
	after, ok := decodeCourse(w, "after", req.After)
	if !ok {
		return
	}
	s.writeReport(w, r, s.deps.Counters.OnUpdated(r.Context(), req.EventID, before, after))
}

// CourseDeleted handles POST /hooks/courses/deleted.
func (s *Server) CourseDeleted(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHook(w, r)
	if !ok {
		return
	}
	c, ok := decodeCourse(w, "course", req.Course)
	if !ok {
		return
	}
	s.writeReport(w, r, s.deps.Counters.OnDeleted(r.Context(), req.EventID, c))
}

// ListFailures handles GET /v1/counters/failures.
func (s *Server) ListFailures(w http.ResponseWriter, r *http.Request) {
	if s.deps.Failures == nil {
		writeError(w, http.StatusNotImplemented, ErrorCodeNotImplemented, "dead letter store is disabled")
		return
	}
	limit := 100
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid limit")
		return
	}

	entries, err := s.deps.Failures.List(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, report event.Report) {
	if report.Failed() {
		s.log(r).Warn("Lifecycle event partially dropped",
			zap.String("event_id", report.EventID),
			zap.String("course_id", report.CourseID),
			zap.Any("failed_kinds", report.FailedKinds()),
		)
	}
	writeJSON(w, http.StatusOK, HookResponse{Report: report, Failed: report.Failed()})
}

func (s *Server) bindCollection(w http.ResponseWriter, r *http.Request) (course.Kind, bool) {
	var name string
	err := runtime.BindStyledParameterWithLocation("simple", false, "collection",
		runtime.ParamLocationPath, chi.URLParam(r, "collection"), &name)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid collection")
		return "", false
	}
	kind, err := course.ParseCollection(name)
	if err != nil {
		s.handleDomainError(w, r, err)
		return "", false
	}
	return kind, true
}

// bindSearchParams never rejects a request: an unusable term falls back to
// the first value and an unusable limit to the default (0).
func (s *Server) bindSearchParams(r *http.Request) (term string, limit int) {
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "term", q, &term); err != nil {
		term = q.Get("term")
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		s.log(r).Warn("Ignoring invalid search limit",
			zap.String("limit", q.Get("limit")), zap.Error(err))
		limit = 0
	}
	return term, limit
}

func (s *Server) log(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}

func decodeHook(w http.ResponseWriter, r *http.Request) (HookRequest, bool) {
	var req HookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHookBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return HookRequest{}, false
	}
	return req, true
}

func decodeCourse(w http.ResponseWriter, field string, raw json.RawMessage) (course.Course, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidation, field+" is required")
		return course.Course{}, false
	}
	var c course.Course
	if err := json.Unmarshal(raw, &c); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidation, fmt.Sprintf("%s: %v", field, err))
		return course.Course{}, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUnknownKind,
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrRateLimited,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.log(r)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			logger.Debug("domain error", zap.Error(err))
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
