// Package server provides the HTTP API for speechlab.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/config"
	"github.com/hyperjump/speechlab/internal/indexer"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/observe"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/submission"
	"github.com/hyperjump/speechlab/internal/vector"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// requestTimeout bounds a whole request, transcription included.
const requestTimeout = 3 * time.Minute

// dashboardTopWords is how many missing words the dashboard reports.
const dashboardTopWords = 10

// WatchService manages the script inbox directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// IndexInfo reports the state of the vector index.
type IndexInfo interface {
	Size() int
	Dimension() int
	SnapshotID() uuid.UUID
}

// Server is the HTTP server for the speechlab API.
type Server struct {
	storage  storage.Storage
	catalog  *indexer.Indexer
	pipeline *submission.Pipeline
	uploads  *submission.Uploads
	index    IndexInfo
	config   *config.Config
	metrics  *observe.Metrics
	logger   *zap.Logger
	server   *http.Server

	watch         WatchService
	configPath    string
	watchConfigMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithWatch enables the watch directory endpoints. Changes are written back to
// the config file at configPath when it is not empty.
func WithWatch(ws WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = ws
		s.configPath = configPath
	}
}

// WithMetrics records HTTP metrics and, when metrics are enabled, serves /metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Storage,
	catalog *indexer.Indexer,
	pipeline *submission.Pipeline,
	uploads *submission.Uploads,
	index IndexInfo,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		storage:  store,
		catalog:  catalog,
		pipeline: pipeline,
		uploads:  uploads,
		index:    index,
		config:   cfg,
		logger:   utils.LoggerOrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(observe.Middleware(s.metrics))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scripts", s.handleCreateScript)
		r.Get("/scripts", s.handleListScripts)
		r.Get("/scripts/practice", s.handlePracticeScripts)
		r.Get("/scripts/{id}", s.handleGetScript)
		r.Post("/submit", s.handleSubmit)
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/feedback/{id}", s.handleGetFeedback)
		r.Get("/admin/dashboard", s.handleDashboard)
		r.Get("/status", s.handleStatus)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	if s.config != nil && s.config.Metrics.Enabled {
		r.Handle("/metrics", observe.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
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

// CollectStatus gathers catalog counts, index state and disk usage.
// Disk usage is best effort and left at zero when it cannot be read.
func CollectStatus(ctx context.Context, store storage.Storage, index IndexInfo, cfg *config.Config) (*models.Status, error) {
	scripts, err := store.CountScripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count scripts: %w", err)
	}
	feedback, err := store.CountFeedback(ctx)
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}
	st := &models.Status{Scripts: scripts, Feedback: feedback}
	if index != nil {
		st.IndexSize = index.Size()
		st.IndexDimension = index.Dimension()
		if id := index.SnapshotID(); id != uuid.Nil {
			st.SnapshotID = id.String()
		}
	}
	if cfg != nil {
		paths := []string{cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.UploadDir}
		if p := cfg.Storage.VectorIndexPath; p != "" {
			paths = append(paths, p, vector.IDsPath(p))
		}
		if n, err := storage.DiskUsageBytes(paths...); err == nil {
			st.DiskUsageBytes = n
		}
	}
	return st, nil
}
