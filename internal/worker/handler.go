package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
)

const readyTimeout = 2 * time.Second

type Handler struct {
	worker *Worker
	auth   middleware.AuthConfig
}

func NewHandler(worker *Worker, auth middleware.AuthConfig) *Handler {
	return &Handler{worker: worker, auth: auth}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("GET /api/worker/status", h.status)
	mux.Handle("POST /api/worker/run", middleware.Auth(h.auth, h.worker.log)(http.HandlerFunc(h.runNow)))

	return middleware.Recovery(h.worker.log)(mux)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	snapshot := h.worker.Snapshot(r.Context())

	response := map[string]any{
		"status":  "ok",
		"uptime":  snapshot.Uptime,
		"running": snapshot.Run != nil && snapshot.Run.Running,
	}
	if snapshot.NextRun != nil {
		response["next_run"] = snapshot.NextRun.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.worker.Ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.worker.Snapshot(r.Context()))
}

// runNow accepts ?network=all|Mobile|Desktop and returns as soon as the run is accepted.
func (h *Handler) runNow(w http.ResponseWriter, r *http.Request) {
	network, err := valueobject.ParseNetworkFilter(r.URL.Query().Get("network"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	ticket, err := h.worker.coordinator.Start(r.Context(), usecase.RunRequest{
		Network: network,
		Trigger: valueobject.TriggerManual,
	})
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "error", "error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"run_id":  ticket.RunID,
		"count":   ticket.Total,
		"network": ticket.Network.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(data)
}
