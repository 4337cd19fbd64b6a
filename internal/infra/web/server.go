// Package web exposes the runner's HTTP surface: the run-jobs trigger,
// health, and Prometheus metrics.
package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"prompt-job-runner/internal/usecase"
)

type Server struct {
	runner        usecase.RunnerUseCase
	triggerSecret string
	log           *zerolog.Logger
}

func NewServer(runner usecase.RunnerUseCase, triggerSecret string, logger *zerolog.Logger) *Server {
	return &Server{runner: runner, triggerSecret: triggerSecret, log: logger}
}

// Router builds the full route tree. The trigger endpoint accepts GET as
// well as POST so plain cron schedulers can hit it without a body.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/internal/run-jobs", s.runJobsHandler)
		r.Get("/internal/run-jobs", s.runJobsHandler)
	})

	return r
}

// authMiddleware requires the shared bearer secret on trigger calls.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.triggerSecret == "" {
			s.log.Error().Msg("trigger secret is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}
		if parts[1] != s.triggerSecret {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) runJobsHandler(w http.ResponseWriter, r *http.Request) {
	counters, err := s.runner.RunDueJobs(r.Context(), usecase.RunParams{})
	if err != nil {
		s.log.Error().Err(err).Msg("triggered run cycle failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":    err.Error(),
			"counters": counters,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(counters)
}
