package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/events"
	"github.com/mattjoyce/mcpserve/internal/ledger"
	"github.com/mattjoyce/mcpserve/internal/protocol"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// SessionManager starts and tracks worker sessions.
type SessionManager interface {
	Mode() supervisor.Mode
	StartSessionMode(ctx context.Context, sessionID string, mode supervisor.Mode, sc config.SessionConfig) (*supervisor.Handle, error)
	Get(sessionID string) (*supervisor.Handle, bool)
	List() []supervisor.Info
	Close(sessionID string) error
}

// ToolServer answers tool requests.
type ToolServer interface {
	ListTools() []protocol.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (*protocol.CallToolResult, error)
	HandleMessage(ctx context.Context, line []byte) *protocol.Response
}

// SessionLedger reads recorded session attempts.
type SessionLedger interface {
	Get(ctx context.Context, sessionID string) (*ledger.Session, error)
	List(ctx context.Context, limit int) ([]ledger.Session, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// SessionDefaults is overlaid by the config of each POST /sessions request.
	SessionDefaults config.SessionConfig
	// StartTimeout bounds POST /sessions; zero means the request context only.
	StartTimeout time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	sessions  SessionManager
	tools     ToolServer
	ledger    SessionLedger
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	mu     sync.Mutex
	relays map[string]*relay
}

// New creates a new API server instance. ledger may be nil.
func New(config Config, sessions SessionManager, tools ToolServer, ledger SessionLedger, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(events.DefaultCapacity)
	}
	return &Server{
		config:    config,
		sessions:  sessions,
		tools:     tools,
		ledger:    ledger,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
		relays:    make(map[string]*relay),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		// SSE streams only end when their subscriptions close.
		s.events.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Get("/events", s.handleEvents)

	r.Get("/tools", s.handleListTools)
	r.Post("/tools/{tool}", s.handleCallTool)
	r.Post("/rpc", s.handleRPC)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleStartSession)
		r.Get("/history", s.handleSessionHistory)
		r.Get("/{sessionID}", s.handleGetSession)
		r.Delete("/{sessionID}", s.handleCloseSession)
		r.Post("/{sessionID}/rpc", s.handleSessionRPC)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
