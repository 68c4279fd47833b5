// Package server exposes the patch engine over HTTP: a JSON API, a
// server-sent event stream of apply outcomes and the MCP streamable endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/asynkron/applypatch/internal/journal"
	"github.com/asynkron/applypatch/internal/logging"
	"github.com/asynkron/applypatch/internal/mcptool"
)

const maxBodyBytes = 8 << 20

// Journal is the subset of *journal.Journal used by the server.
type Journal interface {
	mcptool.Recorder
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Options configures New.
type Options struct {
	// Root is the project directory patches without inline files apply to.
	Root    string
	Version string
	Logger  logging.Logger
	// Journal is optional; without it /v1/history answers 404.
	Journal Journal
}

// Server is the HTTP front end.
type Server struct {
	root    string
	version string
	logger  logging.Logger
	journal Journal
	events  *hub
	mcp     *mcp.Server
	router  chi.Router
}

// New wires routes and the MCP server.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	s := &Server{
		root:    opts.Root,
		version: opts.Version,
		logger:  logger.WithFields(logging.Field("component", "server")),
		journal: opts.Journal,
		events:  newHub(),
	}

	toolOpts := mcptool.Options{Root: opts.Root, Logger: logger, Source: "mcp-http"}
	if opts.Journal != nil {
		toolOpts.Journal = opts.Journal
	}
	mcpServer, err := mcptool.NewServer(opts.Version, toolOpts)
	if err != nil {
		return nil, err
	}
	s.mcp = mcpServer
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/parse", s.handleParse)
		r.Post("/apply", s.handleApply)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	r.Handle("/mcp", mcpHandler)
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info(ctx, "server listening", logging.Field("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.logger.Info(ctx, "server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logging.WithTraceID(ctx, id)
		}
		ctx = logging.EnsureTraceID(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.logger.Debug(ctx, "request",
			logging.Field("method", r.Method),
			logging.Field("path", r.URL.Path),
			logging.Field("status", ww.Status()),
			logging.Field("duration", time.Since(start)))
	})
}
