package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/thep200/dothub-crawler/api"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/model"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
)

type Handler struct {
	Logger   log.Logger
	Config   *cfg.Config
	Database *db.Database
	Ingest   *api.IngestAPI
	RepoMd   *model.Repository
	ConfMd   *model.Configuration
}

func NewHandler(logger log.Logger, config *cfg.Config, database *db.Database, ingest *api.IngestAPI) (*Handler, error) {
	repoMd, err := model.NewRepository(config, logger, database)
	if err != nil {
		return nil, err
	}
	confMd, err := model.NewConfiguration(config, logger, database)
	if err != nil {
		return nil, err
	}
	return &Handler{
		Logger:   logger,
		Config:   config,
		Database: database,
		Ingest:   ingest,
		RepoMd:   repoMd,
		ConfMd:   confMd,
	}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/cron", h.runCron)
		r.Get("/cron", h.cronStats)
		r.Delete("/cron", h.stopCron)

		r.Get("/repositories", h.listRepositories)
		r.Get("/configurations", h.listConfigurations)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.Database.Ping(r.Context()); err != nil {
		h.Logger.Error(r.Context(), "Health check failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
