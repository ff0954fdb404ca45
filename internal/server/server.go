// Package server exposes memoryd over HTTP.
//
// Endpoints:
//   - GET    /health             - liveness and store readiness
//   - GET    /costs              - cumulative cost ledger
//   - POST   /costs/reset        - zero the cost ledger
//   - POST   /costs/record       - report completion-provider token usage
//   - GET    /activity           - recent billable calls, newest first
//   - GET    /names, POST /names - display-name registry
//   - GET    /projects           - per-owner memory counts
//   - GET    /stats              - global memory statistics
//   - POST   /memories           - embed and store a memory
//   - GET    /memories           - list an owner's memories
//   - DELETE /memories/{id}      - delete a memory
//   - POST   /search             - semantic search
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"memoryd/internal/embedding"
	"memoryd/internal/logging"
	"memoryd/internal/registry"
	"memoryd/internal/stats"
	"memoryd/internal/store"
	"memoryd/internal/usage"
)

const (
	// DefaultActivityLimit is used when /activity has no limit parameter.
	DefaultActivityLimit = 50

	// DefaultSearchLimit is used when /search has no limit.
	DefaultSearchLimit = 10

	// MaxSearchLimit bounds /search results.
	MaxSearchLimit = 100

	// DefaultMaxBodyBytes bounds request bodies (1MB).
	DefaultMaxBodyBytes = 1 << 20
)

// Deps are the long-lived services the handlers call into.
type Deps struct {
	Registry *registry.Registry
	Meter    *usage.Meter
	Store    *store.Handle
	Stats    *stats.Aggregator
	Embedder embedding.Engine
}

// Options tune the listener and middleware.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxConnections  int
	WriteRate       float64
	WriteBurst      int
	MaxBodyBytes    int64
	ActivityLimit   int
}

// Server is the memoryd HTTP API.
type Server struct {
	deps   Deps
	opts   Options
	router *http.ServeMux
}

// New creates a server. Zero options take package defaults.
func New(deps Deps, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = DefaultActivityLimit
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{deps: deps, opts: opts, router: http.NewServeMux()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("GET /costs", s.handleCosts)
	s.router.HandleFunc("POST /costs/reset", s.handleCostsReset)
	s.router.HandleFunc("POST /costs/record", s.handleCostsRecord)
	s.router.HandleFunc("GET /activity", s.handleActivity)

	s.router.HandleFunc("GET /names", s.handleGetNames)
	s.router.HandleFunc("POST /names", s.handleRegisterName)
	s.router.HandleFunc("GET /projects", s.handleProjects)
	s.router.HandleFunc("GET /stats", s.handleStats)

	s.router.HandleFunc("POST /memories", s.handleAddMemory)
	s.router.HandleFunc("GET /memories", s.handleListMemories)
	s.router.HandleFunc("DELETE /memories/{id}", s.handleDeleteMemory)
	s.router.HandleFunc("POST /search", s.handleSearch)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(),
		WriteRateLimitMiddleware(s.opts.WriteRate, s.opts.WriteBurst),
	)(s.router)
}

// Run listens on opts.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.API("listening on %s (max_connections=%d)", ln.Addr(), s.opts.MaxConnections)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.API("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
