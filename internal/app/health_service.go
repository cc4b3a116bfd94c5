package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bookd/internal/config"
	"github.com/dokzlo13/bookd/internal/model"
)

// SessionSource reports the current session.
type SessionSource interface {
	Session() *model.Session
}

// Pinger checks a backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService provides HTTP health check and metrics endpoints.
type HealthService struct {
	cfg      *config.Config
	sessions SessionSource
	backend  Pinger
	server   *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, sessions SessionSource, backend Pinger) *HealthService {
	return &HealthService{
		cfg:      cfg,
		sessions: sessions,
		backend:  backend,
	}
}

// Handler returns the router serving /health, /ready and /metrics.
func (s *HealthService) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, rec any) {
		log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Health handler panicked")
		w.WriteHeader(http.StatusInternalServerError)
	}
	return router
}

func (s *HealthService) health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// ready fails while the session backend is unreachable and reports whether
// a user is logged in.
func (s *HealthService) ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.backend.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	body := map[string]any{"status": "ready", "session": false}
	if sess := s.sessions.Session(); sess.Valid() {
		body["session"] = true
		body["user_id"] = sess.ID()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to write health response")
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
