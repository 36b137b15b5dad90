package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/stores"
	"github.com/vizi2000/maicrosoft/pkg/telemetry"
)

// Config holds the HTTP API settings.
type Config struct {
	// ListenAddress is the host:port the API binds to. Port 0 picks a
	// free port; Addr reports the bound one.
	ListenAddress string

	// MaxBodyBytes caps the size of accepted request bodies.
	MaxBodyBytes int64

	// ReadTimeout, WriteTimeout, and IdleTimeout are the usual
	// http.Server limits.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds Shutdown when the caller passes no
	// deadline of its own.
	ShutdownTimeout time.Duration

	// HistoryPageSize is the default page size for the history listing.
	HistoryPageSize int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ListenAddress:   "127.0.0.1:8080",
		MaxBodyBytes:    1 << 20,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		HistoryPageSize: 50,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.HistoryPageSize <= 0 {
		return fmt.Errorf("history page size must be positive")
	}
	return nil
}

// Server serves the engine API. Construct it with New, then Start it;
// Shutdown drains in-flight requests.
type Server struct {
	config Config
	engine *engine.Engine
	store  stores.Store
	tel    *telemetry.Telemetry
	logger zerolog.Logger

	mu        sync.Mutex
	httpSrv   *http.Server
	listener  net.Listener
	startedAt time.Time
}

// New builds a server over an engine. The store enables the history
// endpoint and submission recording; the telemetry enables HTTP
// request metrics. Both may be nil.
func New(config Config, eng *engine.Engine, store stores.Store, tel *telemetry.Telemetry, logger zerolog.Logger) *Server {
	return &Server{
		config: config,
		engine: eng,
		store:  store,
		tel:    tel,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Handler returns the routed API handler, independent of the listener
// lifecycle.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server already started")
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = listener
	s.startedAt = time.Now()

	srv := &http.Server{
		Handler:           s.routes(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	if ctx != nil {
		srv.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.httpSrv = srv

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()

	s.logger.Info().
		Str("address", listener.Addr().String()).
		Bool("history", s.store != nil).
		Msg("API server listening")
	return nil
}

// Shutdown stops accepting connections and waits for in-flight
// requests. Safe to call on a server that never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv == nil {
		return nil
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}

	s.httpSrv = nil
	s.listener = nil
	s.logger.Info().Msg("API server stopped")
	return nil
}

// Addr returns the bound address once the server has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the http base URL of the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// routes wires every endpoint through the instrumentation wrapper.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/validate", s.instrument("/api/v1/validate", s.handleValidate))
	mux.HandleFunc("POST /api/v1/compile", s.instrument("/api/v1/compile", s.handleCompile))
	mux.HandleFunc("GET /api/v1/primitives", s.instrument("/api/v1/primitives", s.handleListPrimitives))
	mux.HandleFunc("GET /api/v1/primitives/{id}", s.instrument("/api/v1/primitives/{id}", s.handleGetPrimitive))
	mux.HandleFunc("GET /api/v1/search", s.instrument("/api/v1/search", s.handleSearch))
	mux.HandleFunc("GET /api/v1/history", s.instrument("/api/v1/history", s.handleHistory))
	mux.HandleFunc("GET /api/v1/status", s.instrument("/api/v1/status", s.handleStatus))
	mux.HandleFunc("GET /healthz", s.instrument("/healthz", s.handleHealthz))
	return mux
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with request logging and, when telemetry
// is attached, the HTTP request metrics. The route label is the
// pattern, not the raw path, so metric cardinality stays bounded.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		duration := time.Since(start)
		if s.tel != nil {
			s.tel.Metrics.RecordHTTPRequest(r.Method, route, rec.status, duration)
		}
		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("Request served")
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
