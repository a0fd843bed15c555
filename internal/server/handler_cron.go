package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/thep200/dothub-crawler/api"
	"github.com/thep200/dothub-crawler/internal/crawler"
)

// runCron ingests synchronously, or in the background with ?async=1. The run
// is detached from the request, so a client that hangs up does not stop it;
// DELETE /api/cron does. Degraded and aborted runs answer 200 with the report.
func (h *Handler) runCron(w http.ResponseWriter, r *http.Request) {
	if async := r.URL.Query().Get("async"); async == "1" || async == "true" {
		h.startCron(w, r)
		return
	}

	report, err := h.Ingest.Run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, api.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case report != nil && report.Stage == crawler.Aborted:
		h.Logger.Warn(r.Context(), "Cron run aborted: %v", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Cron job aborted",
			"report":  report,
		})
	case err != nil:
		h.Logger.Error(r.Context(), "Cron run failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Cron job completed successfully",
			"report":  report,
		})
	}
}

func (h *Handler) startCron(w http.ResponseWriter, r *http.Request) {
	err := h.Ingest.Start()
	switch {
	case errors.Is(err, api.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.Logger.Error(r.Context(), "Cron start failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "Cron job started"})
	}
}

func (h *Handler) cronStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Ingest.Stats())
}

func (h *Handler) stopCron(w http.ResponseWriter, r *http.Request) {
	if !h.Ingest.Stop() {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No ingestion run is in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Stopping ingestion run"})
}
