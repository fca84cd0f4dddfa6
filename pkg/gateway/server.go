package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/harun/nava/pkg/agent"
	"github.com/harun/nava/pkg/routing"
	"github.com/harun/nava/pkg/workspace"
	"github.com/rs/zerolog"
)

const maxPromptBody = 1 << 20

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr      string
	Handle    *agent.Handle
	Gateway   *routing.Gateway
	Workspace *workspace.Workspace
	Logger    zerolog.Logger
	// SharedSecret, when set, is required on every route except /healthz and /metrics.
	SharedSecret string
	// RequestsPerMinute and MaxConcurrent limit each client address on the
	// agent routes. Zero disables the limit.
	RequestsPerMinute int
	MaxConcurrent     int
	// BridgeOutput also receives incidental tool output of websocket sessions.
	BridgeOutput io.Writer
}

// Server is the HTTP surface: websocket sessions, prompt dispatch, streaming,
// workspace files, metrics and health.
type Server struct {
	cfg      ServerConfig
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	sessions *sessionRegistry
	limiter  *rateLimiter

	server   *http.Server
	listener net.Listener

	shuttingDown atomic.Bool
	inFlight     sync.WaitGroup
}

// NewServer creates a new Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Handle == nil {
		return nil, errors.New("agent handle is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("routing gateway is required")
	}
	if cfg.Workspace == nil {
		return nil, errors.New("workspace is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8000"
	}

	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: newSessionRegistry(),
		limiter:  newRateLimiter(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	guard := func(h http.HandlerFunc) http.Handler {
		return requireSecret(s.cfg.SharedSecret, h)
	}
	limited := func(h http.HandlerFunc) http.Handler {
		return requireSecret(s.cfg.SharedSecret, s.limiter.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws/generate", limited(s.handleGenerate))
	mux.Handle("GET /generate", limited(s.handleGenerate))
	mux.Handle("POST /api/prompt", limited(s.handlePrompt))
	mux.Handle("GET /api/prompt/stream", limited(s.handlePromptStream))
	mux.Handle("GET /files", guard(s.handleListFiles))
	mux.Handle("GET /files/{name}", guard(s.handleGetFile))
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return withCORS(withTrace(mux))
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Sessions lists the open websocket sessions.
func (s *Server) Sessions() []SessionInfo {
	return s.sessions.list()
}

// Stop refuses new work, closes open sessions, waits for them to release
// their agents and shuts the HTTP server down. ctx bounds the whole sequence.
func (s *Server) Stop(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.logger.Info().Msg("Shutting down gateway server")

	if n := s.sessions.closeAll(); n > 0 {
		s.logger.Info().Int("sessions", n).Msg("Closed open sessions")
	}

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// withTrace attaches a trace id from X-Trace-Id, or a new one, to the request.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(tracing.WithTraceID(r.Context(), traceID)))
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-Id, "+secretHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
