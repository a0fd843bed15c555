// Package server exposes ingestion and the catalog over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/thep200/dothub-crawler/api"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
)

type Server struct {
	Logger   log.Logger
	Config   *cfg.Config
	Database *db.Database
	Ingest   *api.IngestAPI
	server   *http.Server
	port     int
}

func NewServer(logger log.Logger, config *cfg.Config, database *db.Database, ingest *api.IngestAPI) (*Server, error) {
	if ingest == nil {
		return nil, errors.New("server needs an ingest api")
	}
	return &Server{
		Logger:   logger,
		Config:   config,
		Database: database,
		Ingest:   ingest,
		port:     config.Http.Port,
	}, nil
}

// Router returns the routes without listening, for tests and embedding.
func (s *Server) Router() (http.Handler, error) {
	handler, err := NewHandler(s.Logger, s.Config, s.Database, s.Ingest)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	handler.RegisterRoutes(r)
	return r, nil
}

// Start listens until Stop is called. Ingestion runs synchronously inside a
// request, so the write timeout is left open.
func (s *Server) Start() error {
	router, err := s.Router()
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.Logger.Info(context.Background(), "Starting HTTP server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.Logger.Info(ctx, "Shutting down HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}
