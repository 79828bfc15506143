package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobtrackerhq/job-ingest/internal/config"
	"github.com/jobtrackerhq/job-ingest/internal/ingest"
	"github.com/jobtrackerhq/job-ingest/internal/metrics"
	"github.com/jobtrackerhq/job-ingest/internal/middleware"
)

// RunTrigger starts an ingestion run, synchronously when wait is set.
type RunTrigger interface {
	TriggerNow(ctx context.Context, req ingest.RunRequest, wait bool) (ingest.Run, error)
}

// Server wires HTTP handlers to the scheduler and stores.
type Server struct {
	router  chi.Router
	trigger RunTrigger
	runs    ingest.RunStore
	sources ingest.JobSourceStore
	idGen   ingest.IDGenerator
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	trigger RunTrigger,
	runs ingest.RunStore,
	sources ingest.JobSourceStore,
	idGen ingest.IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		trigger: trigger,
		runs:    runs,
		sources: sources,
		idGen:   idGen,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Metrics)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.submitRun)
		r.Get("/runs/{run_id}", s.getRun)
		r.Get("/sources", s.listSources)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Readiness mirrors liveness today; downstream checks can hang here.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRunRequest struct {
	Source     string `json:"source"`
	MaxRecords int    `json:"max_records"`
	Wait       bool   `json:"wait"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	runID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "generate run id failed")
		return
	}

	run, err := s.trigger.TriggerNow(r.Context(), ingest.RunRequest{
		RunID:      runID,
		SourceName: req.Source,
		MaxRecords: req.MaxRecords,
	}, req.Wait)
	if err != nil {
		s.writeTriggerError(w, req.Source, run, err)
		return
	}
	status := http.StatusAccepted
	if req.Wait {
		status = http.StatusOK
	}
	s.writeJSON(w, status, run)
}

// writeTriggerError maps pipeline errors onto HTTP statuses. A run that
// executed and failed still carries a summary worth returning.
func (s *Server) writeTriggerError(w http.ResponseWriter, source string, run ingest.Run, err error) {
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown source %q", source))
	case errors.Is(err, ingest.ErrSourceInactive):
		s.writeError(w, http.StatusConflict, fmt.Sprintf("source %q is inactive", source))
	case errors.Is(err, ingest.ErrRunInProgress):
		s.writeError(w, http.StatusConflict, fmt.Sprintf("a run for source %q is already in progress", source))
	case run.Status == ingest.RunStatusFailed:
		s.writeJSON(w, http.StatusBadGateway, run)
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

type sourceView struct {
	Name             string     `json:"name"`
	BaseURL          string     `json:"base_url"`
	IsActive         bool       `json:"is_active"`
	LastScraped      *time.Time `json:"last_scraped,omitempty"`
	TotalJobsScraped int64      `json:"total_jobs_scraped"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.ListActiveSources(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, sourceView{
			Name:             src.Name,
			BaseURL:          src.BaseURL,
			IsActive:         src.IsActive,
			LastScraped:      src.LastScraped,
			TotalJobsScraped: src.TotalJobsScraped,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sources": views})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
