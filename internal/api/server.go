package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
	"github.com/JakeFAU/delta-harvester/internal/metrics"
	"github.com/JakeFAU/delta-harvester/internal/storage/memory"
)

// RunStore exposes recorded run reports.
type RunStore interface {
	Latest(ctx context.Context) (harvest.RunReport, error)
	List(ctx context.Context) ([]harvest.RunReport, error)
}

// Runner performs one harvesting pass.
type Runner interface {
	Run(ctx context.Context) (harvest.RunReport, error)
}

// Server wires HTTP handlers to the run store and runner.
type Server struct {
	router  chi.Router
	runs    RunStore
	runner  Runner
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewServer constructs a Server with middleware and routes. Triggered runs
// inherit ctx; a nil runner disables POST /v1/runs. An empty apiKey leaves
// the trigger unauthenticated.
func NewServer(
	ctx context.Context,
	runs RunStore,
	runner Runner,
	apiKey string,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:   runs,
		runner: runner,
		logger: logger,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Get("/latest", s.latestRun)
		r.With(apiKeyMiddleware(apiKey)).Post("/", s.triggerRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close cancels triggered runs and waits for them to finish.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if s.running.Load() {
		status = "running"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	reports, err := s.runs.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": summaries(reports)})
}

func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.runs.Latest(r.Context())
	if errors.Is(err, memory.ErrNoRuns) {
		s.writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) triggerRun(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil {
		s.writeError(w, http.StatusNotImplemented, "run triggering disabled")
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		report, err := s.runner.Run(s.ctx)
		if err != nil {
			s.logger.Error("triggered run failed", zap.Error(err))
			return
		}
		s.logger.Info("triggered run finished",
			zap.String("run_id", report.RunID),
			zap.Int("documents", len(report.Result.Documents)),
		)
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type runSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Documents  int       `json:"documents"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	Failed     bool      `json:"failed"`
	DatasetURI string    `json:"dataset_uri,omitempty"`
}

func summaries(reports []harvest.RunReport) []runSummary {
	out := make([]runSummary, 0, len(reports))
	for _, r := range reports {
		out = append(out, runSummary{
			RunID:      r.RunID,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Documents:  len(r.Result.Documents),
			Skipped:    r.Result.Skipped,
			Errors:     len(r.Result.Errors),
			Failed:     r.Failed(),
			DatasetURI: r.DatasetURI,
		})
	}
	return out
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
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
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Debug("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeJSON(logger, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(expected)) != 1 {
				writeJSON(zap.NewNop(), w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
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

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
