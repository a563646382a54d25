// Package server provides the HTTP API for qexpand: feedback sessions, session history,
// the local plays corpus and service status.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/backend"
	"github.com/hyperjump/qexpand/internal/config"
	"github.com/hyperjump/qexpand/internal/feedback"
	"github.com/hyperjump/qexpand/internal/indexer"
	"github.com/hyperjump/qexpand/internal/metrics"
	"github.com/hyperjump/qexpand/internal/storage"
	"go.uber.org/zap"
)

// maxIterations bounds the rounds a single request may ask for.
const maxIterations = 20

// CorpusWatcher is the subset of the corpus watcher the API exposes.
type CorpusWatcher interface {
	Paths() []string
	AddPath(path string, syncExisting bool) error
	RemovePath(path string) error
}

// Deps are the server's collaborators. Indexer, Watcher, Metrics and LoopOptions are optional.
type Deps struct {
	Backend     backend.Backend
	Tokenizer   *analysis.Tokenizer
	Feedback    feedback.Options
	LoopOptions []feedback.LoopOption
	Storage     storage.Storage
	Indexer     *indexer.Indexer
	Watcher     CorpusWatcher
	Metrics     *metrics.Metrics
	Config      *config.Config
}

// Server is the HTTP server for the qexpand API.
type Server struct {
	deps   Deps
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, config: cfg, logger: logger}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/expand", s.handleExpand)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/plays", s.handleIndexPlays)
		r.Get("/plays/{id}", s.handleGetPlay)
		r.Delete("/plays/{id}", s.handleDeletePlay)
		r.Get("/corpus/paths", s.handleCorpusPathsList)
		r.Post("/corpus/paths", s.handleCorpusPathsAdd)
		r.Delete("/corpus/paths", s.handleCorpusPathsRemove)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
