// Package server exposes a graph over HTTP: schema introspection for
// frontend collaborators and call endpoints for full runs, single nodes,
// and scattered-item re-runs.
//
// Ports are addressed as "node__port" in schema ids and call inputs, so a
// client can round-trip an id from the schema straight into a call body.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/gaganchapa/daggr/pkg/daggr"
	"github.com/gaganchapa/daggr/pkg/daggr/history"
)

// Option configures optional Server behavior.
type Option func(*Server)

// WithLogger sets the structured logger for request handling and run
// events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHistory records run results to the store and enables the
// /api/runs routes.
func WithHistory(store history.Store) Option {
	return func(s *Server) {
		s.history = store
	}
}

// WithExecutorOptions appends options passed to the underlying executor.
func WithExecutorOptions(opts ...daggr.ExecutorOption) Option {
	return func(s *Server) {
		s.execOpts = append(s.execOpts, opts...)
	}
}

// Server holds the chi router and the executor for one graph. Execution
// is single-flighted: the executor owns one result store, so concurrent
// call requests serialize on it.
type Server struct {
	router   chi.Router
	graph    *daggr.Graph
	ex       *daggr.Executor
	logger   *slog.Logger
	history  history.Store
	execOpts []daggr.ExecutorOption

	mu sync.Mutex
}

// NewServer creates a Server with all routes configured.
func NewServer(graph *daggr.Graph, opts ...Option) *Server {
	if graph == nil {
		panic("server: requires a non-nil graph")
	}
	s := &Server{graph: graph}
	for _, opt := range opts {
		opt(s)
	}

	execOpts := s.execOpts
	if s.logger != nil {
		execOpts = append(execOpts, daggr.WithLogger(s.logger))
	}
	if s.history != nil {
		execOpts = append(execOpts, daggr.WithHistory(s.history))
	}
	s.ex = daggr.NewExecutor(graph, execOpts...)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/schema", s.handleSchema)
		r.Post("/call", s.handleCall)
		r.Post("/call/{node}", s.handleCallNode)
		r.Post("/call/{node}/items/{index}", s.handleCallItem)
		if s.history != nil {
			r.Get("/runs", s.handleRuns)
			r.Get("/runs/{runID}", s.handleRun)
		}
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
