// Package server exposes the template generation pipeline over HTTP.
package server

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

	"github.com/space-cap/alimgen/compliance"
	"github.com/space-cap/alimgen/model"
)

// Request size bounds, in runes.
const (
	minRequestLength  = 10
	maxRequestLength  = 1000
	shutdownTimeout   = 10 * time.Second
	defaultExampleCap = 5
)

// Service is what the handlers need from the assembled pipeline.
type Service interface {
	GenerateTemplate(ctx context.Context, req model.Request) *model.Result
	ValidateTemplate(ctx context.Context, templateText, buttonSuggestion string) *model.Verdict
	Examples(businessType string, limit int) []model.ApprovedTemplate
	Categories() map[string][]string
	Health(ctx context.Context) map[string]any
	Stats() map[string]any
	MetricsHandler() http.Handler
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	svc    Service
	logger *slog.Logger
	router chi.Router
}

// New creates a Server with its routes mounted.
func New(svc Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/templates", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/validate", s.handleValidate)
		r.Get("/examples/{businessType}", s.handleExamples)
		r.Get("/categories", s.handleCategories)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", svc.MetricsHandler())

	s.router = r
	return s
}

// Router returns the mounted handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks until the context is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// validateRequest is the body of POST /api/v1/templates/validate.
type validateRequest struct {
	TemplateText string   `json:"template_text"`
	Variables    []string `json:"variables,omitempty"`
	BusinessType string   `json:"business_type,omitempty"`
	ButtonText   string   `json:"button_text,omitempty"`
}

// validateResponse mirrors the verdict plus a rendered report.
type validateResponse struct {
	Success          bool                 `json:"success"`
	Compliance       model.Verdict        `json:"compliance"`
	DetailedScores   model.DetailedScores `json:"detailed_scores"`
	ComplianceReport string               `json:"compliance_report"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "요청 본문을 해석할 수 없습니다.", err.Error())
		return
	}
	if n := len([]rune(req.UserRequest)); n < minRequestLength || n > maxRequestLength {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"user_request는 10자 이상 1000자 이하여야 합니다.", "")
		return
	}

	result := s.svc.GenerateTemplate(r.Context(), req)
	if !result.Success {
		writeError(w, http.StatusInternalServerError, "GENERATION_FAILED",
			"템플릿 생성에 실패했습니다.", joinErrors(result.WorkflowInfo.Errors))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "요청 본문을 해석할 수 없습니다.", err.Error())
		return
	}
	if n := len([]rune(req.TemplateText)); n < minRequestLength || n > maxRequestLength {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"template_text는 10자 이상 1000자 이하여야 합니다.", "")
		return
	}

	verdict := s.svc.ValidateTemplate(r.Context(), req.TemplateText, req.ButtonText)
	writeJSON(w, http.StatusOK, validateResponse{
		Success:          true,
		Compliance:       *verdict,
		DetailedScores:   verdict.DetailedScores,
		ComplianceReport: compliance.Report(verdict),
	})
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	businessType := chi.URLParam(r, "businessType")
	limit := defaultExampleCap
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}

	examples := s.svc.Examples(businessType, limit)
	formatted := make([]map[string]any, 0, len(examples))
	for _, ex := range examples {
		formatted = append(formatted, map[string]any{
			"id":           ex.ID,
			"text":         ex.Text,
			"category":     ex.Metadata.Category1 + " > " + ex.Metadata.Category2,
			"service_type": ex.Metadata.ServiceType,
			"variables":    ex.Variables,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"business_type":  businessType,
		"returned_count": len(formatted),
		"examples":       formatted,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Categories())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.svc.Health(r.Context())
	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: message, Details: details},
	})
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("limit must be positive")
	}
	return n, nil
}
