// Package server provides the HTTP API for the document store.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/config"
	"github.com/bicesterbug/bbug-planning-reporter/internal/indexer"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
	"github.com/bicesterbug/bbug-planning-reporter/internal/watcher"
)

// Ingester runs single and batch ingestion.
type Ingester interface {
	IngestDocument(ctx context.Context, path, caseReference, documentType string) models.IngestResult
	IngestBatch(ctx context.Context, paths []string, caseReference, documentType string, reporter *progress.Reporter) ([]indexer.BatchItem, error)
}

// WatchService manages inbox directories.
type WatchService interface {
	Inboxes() []watcher.Inbox
	AddInbox(inbox watcher.Inbox, syncExisting bool) error
	RemoveInbox(path string) error
}

// Server is the HTTP server for the document store API.
type Server struct {
	retrieval *retrieval.Service
	ingester  Ingester
	cfg       *config.Config
	logger    *zap.Logger

	hub        *progress.Hub
	observers  []progress.Observer
	watch      WatchService
	configPath string
	cfgMu      sync.Mutex
	mcp        http.Handler

	jobs    sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithHub serves batch progress over websocket at /api/v1/progress/ws.
func WithHub(h *progress.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithObservers adds progress observers to every batch started over HTTP.
func WithObservers(obs ...progress.Observer) Option {
	return func(s *Server) { s.observers = append(s.observers, obs...) }
}

// WithWatch enables the inbox endpoints. When configPath is set, inbox changes
// are written back to the config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// WithMCPHandler mounts an MCP streamable HTTP handler at cfg.Server.MCPPath.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// NewServer creates a server with the given dependencies.
func NewServer(ret *retrieval.Service, ing Ingester, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		retrieval: ret,
		ingester:  ing,
		cfg:       cfg,
		logger:    logger,
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	// Long-lived streams stay outside the request timeout.
	if s.hub != nil {
		r.Get("/api/v1/progress/ws", s.hub.ServeHTTP)
	}
	if s.mcp != nil && s.cfg.Server.MCPPath != "" {
		r.Handle(s.cfg.Server.MCPPath, s.mcp)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/ingest", s.handleIngest)
		r.Post("/api/v1/ingest/batch", s.handleIngestBatch)
		r.Post("/api/v1/search", s.handleSearch)
		r.Post("/api/v1/search/keyword", s.handleKeywordSearch)
		r.Post("/api/v1/search/hybrid", s.handleHybridSearch)
		r.Get("/api/v1/documents/{id}/text", s.handleDocumentText)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
		r.Get("/api/v1/cases/{case}/documents", s.handleListDocuments)
		r.Get("/api/v1/status", s.handleStatus)

		r.Get("/api/v1/watch/inboxes", s.handleWatchInboxesList)
		r.Post("/api/v1/watch/inboxes", s.handleWatchInboxesAdd)
		r.Delete("/api/v1/watch/inboxes", s.handleWatchInboxesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server. Batches still queued are cancelled;
// documents already in progress finish.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown before background batches finished")
	}
	return err
}
