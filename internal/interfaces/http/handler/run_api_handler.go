package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

const defaultHistoryLimit = 20

// RunController управляет запусками измерений
type RunController interface {
	Start(ctx context.Context, req usecase.RunRequest) (usecase.RunTicket, error)
	Status() *dto.RunStatusDTO
	History(ctx context.Context, limit int) ([]*dto.RunSummaryDTO, error)
}

// RunAPIHandler обрабатывает запуск измерений и статус
type RunAPIHandler struct {
	runs   RunController
	logger *logger.Logger
}

type measureRequest struct {
	Network string `json:"network"`
}

// measureResponse повторяет ответ /api/measure
type measureResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Count   int    `json:"count"`
	Network string `json:"network"`
	Message string `json:"message,omitempty"`
}

// NewRunAPIHandler создает новый handler
func NewRunAPIHandler(runs RunController, logger *logger.Logger) *RunAPIHandler {
	return &RunAPIHandler{
		runs:   runs,
		logger: logger,
	}
}

// Measure принимает запуск и сразу отвечает, измерение идет в фоне
func (h *RunAPIHandler) Measure(w http.ResponseWriter, r *http.Request) {
	var req measureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	network, err := valueobject.ParseNetworkFilter(req.Network)
	if err != nil {
		writeError(w, http.StatusBadRequest, "network must be all, Mobile or Desktop")
		return
	}

	ticket, err := h.runs.Start(r.Context(), usecase.RunRequest{
		Network: network,
		Trigger: valueobject.TriggerManual,
	})
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		writeError(w, http.StatusConflict, "measurement already running")
		return
	case err != nil:
		h.logger.Error("Failed to start measurement run", err, "network", network.String())
		writeError(w, http.StatusInternalServerError, "failed to start measurement")
		return
	}

	if ticket.Total == 0 {
		middleware.WriteJSON(w, http.StatusOK, measureResponse{
			Success: false,
			RunID:   ticket.RunID,
			Network: network.String(),
			Message: usecase.NoTargetsMessage,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, measureResponse{
		Success: true,
		RunID:   ticket.RunID,
		Count:   ticket.Total,
		Network: ticket.Network.String(),
	})
}

// Status возвращает снимок текущего запуска
func (h *RunAPIHandler) Status(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.runs.Status())
}

// History возвращает последние запуски
func (h *RunAPIHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.runs.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load run history", err)
		writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}
