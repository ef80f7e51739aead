package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	"github.com/JakeFAU/ladder-battle-crawler/internal/metrics"
	"github.com/JakeFAU/ladder-battle-crawler/internal/store"
)

const (
	lookupTimeout   = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

// StatsSource exposes the live session snapshot. *crawler.Engine implements it.
type StatsSource interface {
	Stats() crawler.Stats
}

// SinkReport summarizes what the in-process sinks hold.
type SinkReport struct {
	Battles       int            `json:"battles"`
	Notifications int            `json:"notifications"`
	ByTopic       map[string]int `json:"notifications_by_topic,omitempty"`
	Recent        []any          `json:"recent_notifications,omitempty"`
	Archives      []string       `json:"archives"`
}

// SinkSource reports on in-process sinks.
type SinkSource interface {
	SinkReport() SinkReport
}

// Option customizes a Server.
type Option func(*Server)

// WithSinks serves GET /v1/crawl/sinks from src.
func WithSinks(src SinkSource) Option {
	return func(s *Server) { s.sinks = src }
}

// Server serves crawl status over HTTP.
type Server struct {
	router chi.Router
	stats  StatsSource
	runs   store.RunRepository
	sinks  SinkSource
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs may be nil.
func NewServer(stats StatsSource, runs store.RunRepository, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		stats:  stats,
		runs:   runs,
		logger: logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/crawl/stats", s.crawlStats)
		r.Get("/crawl/sinks", s.crawlSinks)
		r.Get("/runs/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no session"})
		return
	}
	st := s.stats.Stats()
	switch st.State {
	case crawler.StateRunning, crawler.StateDraining:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": st.StateName})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "state": st.StateName})
	}
}

func (s *Server) crawlStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "no crawl session")
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) crawlSinks(w http.ResponseWriter, _ *http.Request) {
	if s.sinks == nil {
		writeError(w, http.StatusServiceUnavailable, "no in-process sinks")
		return
	}
	writeJSON(w, http.StatusOK, s.sinks.SinkReport())
}

// getRun handles GET /v1/runs/{run_id}: 400 for malformed IDs, 404 when the
// repository reports store.ErrNotFound, 503 without a repository.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

type runDTO struct {
	ID               string     `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Status           string     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	PlayersProcessed int        `json:"players_processed"`
	BattlesStored    int        `json:"battles_stored"`
	ArchiveURI       string     `json:"archive_uri,omitempty"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
}

func toRunDTO(run store.Run) runDTO {
	return runDTO{
		ID:               run.ID.String(),
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		Status:           string(run.Status),
		Reason:           run.Reason,
		PlayersProcessed: run.PlayersProcessed,
		BattlesStored:    run.BattlesStored,
		ArchiveURI:       run.ArchiveURI,
		ErrorMessage:     run.ErrorMessage,
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
