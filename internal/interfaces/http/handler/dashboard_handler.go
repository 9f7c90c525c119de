package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/view"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

const dashboardRecentLimit = 20

// DashboardHandler отображает страницу статуса
type DashboardHandler struct {
	status   StatusSource
	statsUC  *usecase.GetStatsUseCase
	listUC   *usecase.ListMeasurementsUseCase
	location *time.Location
	logger   *logger.Logger
}

// NewDashboardHandler создает новый handler
func NewDashboardHandler(
	status StatusSource,
	statsUC *usecase.GetStatsUseCase,
	listUC *usecase.ListMeasurementsUseCase,
	location *time.Location,
	logger *logger.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		status:   status,
		statsUC:  statsUC,
		listUC:   listUC,
		location: location,
		logger:   logger,
	}
}

// ShowDashboard отображает статус запуска, сводку и последние измерения.
// Ошибки чтения не ломают страницу: соответствующий блок просто пропускается.
func (h *DashboardHandler) ShowDashboard(w http.ResponseWriter, r *http.Request) {
	data := view.StatusPageData{
		Status:   h.status.Status(),
		Location: h.location,
	}

	if stats, err := h.statsUC.Execute(r.Context()); err != nil {
		h.logger.Warn("Failed to load stats for dashboard", "error", err.Error())
	} else {
		data.Stats = stats
	}

	if list, err := h.listUC.Execute(r.Context(), dashboardRecentLimit); err != nil {
		h.logger.Warn("Failed to load measurements for dashboard", "error", err.Error())
	} else {
		data.Recent = list.Measurements
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// Рендерим Templ component
	if err := view.StatusPage(data).Render(r.Context(), w); err != nil {
		h.logger.Error("Failed to render dashboard", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}
