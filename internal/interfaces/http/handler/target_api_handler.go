package handler

import (
	"errors"
	"net/http"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// TargetAPIHandler обслуживает реестр целей измерения
type TargetAPIHandler struct {
	targetsUC *usecase.ManageTargetsUseCase
	logger    *logger.Logger
}

// NewTargetAPIHandler создает новый handler
func NewTargetAPIHandler(targetsUC *usecase.ManageTargetsUseCase, logger *logger.Logger) *TargetAPIHandler {
	return &TargetAPIHandler{
		targetsUC: targetsUC,
		logger:    logger,
	}
}

// List возвращает все цели
func (h *TargetAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	targets, err := h.targetsUC.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list targets", err)
		writeError(w, http.StatusInternalServerError, "failed to load urls")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, targets)
}

// Create регистрирует новую цель
func (h *TargetAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd dto.CreateTargetCommand
	if err := decodeJSON(w, r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := h.targetsUC.Create(r.Context(), cmd)
	if err != nil {
		h.writeTargetError(w, err, "failed to create url")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      target.ID,
		"url":     target,
	})
}

// Update применяет частичное изменение цели
func (h *TargetAPIHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var cmd dto.UpdateTargetCommand
	if err := decodeJSON(w, r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := h.targetsUC.Update(r.Context(), id, cmd)
	if err != nil {
		h.writeTargetError(w, err, "failed to update url")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     target,
	})
}

// Delete удаляет цель, история измерений сохраняется
func (h *TargetAPIHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.targetsUC.Delete(r.Context(), id); err != nil {
		h.writeTargetError(w, err, "failed to delete url")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *TargetAPIHandler) writeTargetError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrTargetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateTarget):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Target registry operation failed", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
