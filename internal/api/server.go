// Package api hosts the status HTTP server for operator access. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /progress for snapshot row counts while a crawl runs.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/metrics"
	"github.com/opencampus/portal-crawler/internal/store"
)

const progressTimeout = 3 * time.Second

// Server wires the status routes to the snapshot store.
type Server struct {
	router chi.Router
	st     store.Store
	log    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st store.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	metrics.Init()
	s := &Server{st: st, log: log}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/progress", s.progress)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()
	if _, err := s.st.EntityCounts(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// progressResponse is the GET /progress payload.
type progressResponse struct {
	Counts    map[string]int64 `json:"counts"`
	Timestamp time.Time        `json:"timestamp"`
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()
	counts, err := s.st.EntityCounts(ctx)
	if err != nil {
		s.log.Error("entity counts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count entities")
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		Counts:    counts,
		Timestamp: time.Now().UTC(),
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
