// Package api serves the read-only status surface of ScriptCord.
//
// It exposes health, interpreter status, pending timers and Prometheus
// metrics over HTTP. Nothing here mutates interpreter state.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/ScriptCord/internal/metrics"
	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/util"
)

// DefaultAddr is used when no address is configured.
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// TimerSource lists pending timers.
type TimerSource interface {
	Timers(ctx context.Context) ([]models.TimerRecord, error)
}

// Counter reports a size, such as registered controls or declared variables.
type Counter interface {
	Len() int
}

// Opts configures a Server.
type Opts struct {
	Addr      string
	Timers    TimerSource
	Bindings  Counter
	Variables Counter
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Option is a functional option for configuring the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTimers sets the source of pending timers.
func WithTimers(t TimerSource) Option {
	return func(o *Opts) { o.Timers = t }
}

// WithBindings sets the interaction registry counter.
func WithBindings(c Counter) Option {
	return func(o *Opts) { o.Bindings = c }
}

// WithVariables sets the variable store counter.
func WithVariables(c Counter) Option {
	return func(o *Opts) { o.Variables = c }
}

// WithMetrics enables GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Server is the status HTTP server.
type Server struct {
	addr      string
	timers    TimerSource
	bindings  Counter
	variables Counter
	metrics   *metrics.Metrics
	now       func() time.Time
	started   time.Time
}

// NewServer creates a Server from opts.
func NewServer(opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:      cfg.Addr,
		timers:    cfg.Timers,
		bindings:  cfg.Bindings,
		variables: cfg.Variables,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		started:   cfg.Now(),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.healthHandler)
	r.Get("/status", s.statusHandler)
	r.Get("/timers", s.timersHandler)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: status API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status API failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		return err
	}
	slog.Info("Server.Run: status API stopped")
	return nil
}

// healthHandler reports healthy while the state backend answers.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK
	if s.timers != nil {
		if _, err := s.timers.Timers(ctx); err != nil {
			slog.Warn("Server.healthHandler: state backend unavailable", "error", err)
			health["status"] = "degraded"
			health["error"] = "Failed to read persisted state"
			statusCode = http.StatusServiceUnavailable
		}
	}
	writeJSONResponse(w, statusCode, health)
}

// Status is the body of GET /status.
type Status struct {
	Bindings      int    `json:"bindings"`
	Variables     int    `json:"variables"`
	PendingTimers int    `json:"pending_timers"`
	Uptime        string `json:"uptime"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := Status{Uptime: util.FormatDuration(s.now().Sub(s.started), "s")}
	if s.bindings != nil {
		status.Bindings = s.bindings.Len()
	}
	if s.variables != nil {
		status.Variables = s.variables.Len()
	}
	if s.timers != nil {
		timers, err := s.timers.Timers(r.Context())
		if err != nil {
			slog.Error("Server.statusHandler: failed to list timers", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list timers"))
			return
		}
		status.PendingTimers = len(timers)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

// TimerView is one entry of GET /timers.
type TimerView struct {
	ID        string               `json:"id"`
	Path      models.ExecutionPath `json:"func"`
	ChannelID models.Snowflake     `json:"channel"`
	UserID    models.Snowflake     `json:"user"`
	GuildID   models.Snowflake     `json:"guild"`
	Due       time.Time            `json:"time"`
	DueIn     string               `json:"due_in"`
	Actions   int                  `json:"actions"`
}

func (s *Server) timersHandler(w http.ResponseWriter, r *http.Request) {
	if s.timers == nil {
		writeJSONResponse(w, http.StatusOK, models.Success(map[string]any{"timers": []TimerView{}, "count": 0}))
		return
	}
	timers, err := s.timers.Timers(r.Context())
	if err != nil {
		slog.Error("Server.timersHandler: failed to list timers", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list timers"))
		return
	}

	now := s.now()
	views := make([]TimerView, 0, len(timers))
	for _, t := range timers {
		views = append(views, TimerView{
			ID:        t.ID,
			Path:      t.Path,
			ChannelID: t.ChannelID,
			UserID:    t.UserID,
			GuildID:   t.GuildID,
			Due:       t.Due,
			DueIn:     util.FormatDuration(t.Due.Sub(now), "s"),
			Actions:   len(t.Do),
		})
	}
	slog.Debug("Server.timersHandler: returning timers", "count", len(views))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]any{"timers": views, "count": len(views)}))
}
