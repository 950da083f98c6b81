// Package api serves the local admin HTTP API of the backup daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/memobackup/internal/coordinator"
	"git.home.luguber.info/inful/memobackup/internal/events"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
	"git.home.luguber.info/inful/memobackup/internal/store"
)

// Coordinator is the part of the sync coordinator the API drives.
type Coordinator interface {
	Status() coordinator.Status
	RequestManualSync(ctx context.Context, override string) (coordinator.Outcome, error)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	SetInterval(ctx context.Context, minutes int) error
	SetFileNamePrefix(ctx context.Context, prefix string) error
}

// RemoteChecker verifies the remote target is reachable.
type RemoteChecker interface {
	Check(ctx context.Context) error
	Name() string
}

// Config wires a Server. Memos, Bus and Metrics are optional.
type Config struct {
	Addr        string
	Coordinator Coordinator
	Remote      RemoteChecker
	Memos       store.Store
	Selector    store.Selector
	Bus         *events.Bus
	Metrics     http.Handler
	// SyncTimeout bounds how long POST /api/sync waits for the outcome.
	SyncTimeout time.Duration
}

// Server represents the API server.
type Server struct {
	Addr   string
	cfg    Config
	router *chi.Mux
	server *http.Server
	errors *ferrors.HTTPErrorAdapter

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 5 * time.Minute
	}
	s := &Server{
		Addr:    cfg.Addr,
		cfg:     cfg,
		router:  chi.NewRouter(),
		errors:  ferrors.NewHTTPErrorAdapter(slog.Default()),
		closing: make(chan struct{}),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.With(middleware.Timeout(s.cfg.SyncTimeout)).Post("/sync", s.handleSync)
		r.Post("/auto-sync/enable", s.handleEnable)
		r.Post("/auto-sync/disable", s.handleDisable)
		r.Put("/interval", s.handleInterval)
		r.Put("/prefix", s.handlePrefix)
		r.Get("/remote/check", s.handleRemoteCheck)
		r.Get("/events", s.handleEvents)

		if s.cfg.Memos != nil {
			r.Get("/memos", s.handleListMemos)
			r.Delete("/memos", s.handleClearMemos)
			r.Get("/memos/{key}", s.handleGetMemo)
			r.Put("/memos/{key}", s.handleSetMemo)
			r.Delete("/memos/{key}", s.handleRemoveMemo)
		}
	})
}

// Start listens on Addr and serves in the background. It returns once the
// listener is bound so callers see port conflicts immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to bind admin API").
			WithContext("addr", s.Addr).
			Build()
	}
	s.Addr = ln.Addr().String()
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin API stopped", logfields.Error(err))
		}
	}()
	slog.Info("Admin API listening", slog.String("addr", s.Addr))
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Event streams never go idle on their own.
	s.closeOnce.Do(func() { close(s.closing) })
	return s.server.Shutdown(ctx)
}

// Response represents a standard API response.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

// Error writes a classified error response.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	s.errors.WriteErrorResponse(w, r, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("Admin API request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Duration("duration", time.Since(start)))
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid JSON body").Build()
	}
	return nil
}
