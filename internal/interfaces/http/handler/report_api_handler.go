package handler

import (
	"errors"
	"net/http"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// ReportAPIHandler обслуживает чтение результатов: статистику, список, отчет и решения
type ReportAPIHandler struct {
	statsUC    *usecase.GetStatsUseCase
	listUC     *usecase.ListMeasurementsUseCase
	purgeUC    *usecase.PurgeMeasurementsUseCase
	reportUC   *usecase.ImprovementReportUseCase
	solutionUC *usecase.GenerateSolutionUseCase
	logger     *logger.Logger
}

type generateSolutionRequest struct {
	IssueKey string `json:"issueKey"`
}

// NewReportAPIHandler создает новый handler
func NewReportAPIHandler(
	statsUC *usecase.GetStatsUseCase,
	listUC *usecase.ListMeasurementsUseCase,
	purgeUC *usecase.PurgeMeasurementsUseCase,
	reportUC *usecase.ImprovementReportUseCase,
	solutionUC *usecase.GenerateSolutionUseCase,
	logger *logger.Logger,
) *ReportAPIHandler {
	return &ReportAPIHandler{
		statsUC:    statsUC,
		listUC:     listUC,
		purgeUC:    purgeUC,
		reportUC:   reportUC,
		solutionUC: solutionUC,
		logger:     logger,
	}
}

// GetStats возвращает сводную статистику
func (h *ReportAPIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsUC.Execute(r.Context())
	if err != nil {
		h.logger.Error("Failed to get stats", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}

// ListMeasurements возвращает последние измерения, новые первыми
func (h *ReportAPIHandler) ListMeasurements(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", usecase.DefaultMeasurementsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.listUC.Execute(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list measurements", err)
		writeError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, list)
}

// PurgeMeasurements удаляет все измерения
func (h *ReportAPIHandler) PurgeMeasurements(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.purgeUC.Execute(r.Context())
	if err != nil {
		h.logger.Error("Failed to purge measurements", err)
		writeError(w, http.StatusInternalServerError, "failed to delete measurements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
		"message": "all measurements deleted",
	})
}

// GetImprovementReport возвращает рейтинг предложений по улучшению
func (h *ReportAPIHandler) GetImprovementReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reportUC.Execute(r.Context())
	if err != nil {
		h.logger.Error("Failed to build improvement report", err)
		writeError(w, http.StatusInternalServerError, "failed to build improvement report")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// GenerateSolution генерирует текст решения для аудита
func (h *ReportAPIHandler) GenerateSolution(w http.ResponseWriter, r *http.Request) {
	var req generateSolutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	solution, err := h.solutionUC.Execute(r.Context(), req.IssueKey)
	switch {
	case errors.Is(err, usecase.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, port.ErrSolutionProviderDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, "failed to generate solution")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"issue_key": solution.IssueKey,
		"provider":  solution.Provider,
		"solution":  solution.Solution,
	})
}
