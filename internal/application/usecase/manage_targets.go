package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// ManageTargetsUseCase реализует реестр целей
// Конвейер перечитывает активные цели при каждом запуске, поэтому изменения вступают в силу со следующего запуска
type ManageTargetsUseCase struct {
	repository repository.TargetRepository
	cache      port.Cache
	logger     *logger.Logger
}

// NewManageTargetsUseCase создает новый use case
func NewManageTargetsUseCase(repository repository.TargetRepository, cache port.Cache, logger *logger.Logger) *ManageTargetsUseCase {
	return &ManageTargetsUseCase{
		repository: repository,
		cache:      cache,
		logger:     logger,
	}
}

// List возвращает все цели
func (uc *ManageTargetsUseCase) List(ctx context.Context) ([]*dto.TargetDTO, error) {
	targets, err := uc.repository.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return dto.ToTargetDTOs(targets), nil
}

// Create регистрирует новую активную цель
func (uc *ManageTargetsUseCase) Create(ctx context.Context, cmd dto.CreateTargetCommand) (*dto.TargetDTO, error) {
	network, err := valueobject.ParseNetworkProfile(cmd.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	target, err := entity.NewTarget(cmd.URL, cmd.SiteName, cmd.PageDetail, network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := uc.repository.Create(ctx, target); err != nil {
		if errors.Is(err, repository.ErrDuplicateTarget) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	uc.logger.Info("Target created", "id", target.ID(), "url", target.URL(), "network", target.Network().String())
	uc.invalidateStats(ctx)

	return dto.FromTarget(target), nil
}

// Update применяет частичные изменения к цели
func (uc *ManageTargetsUseCase) Update(ctx context.Context, id int64, cmd dto.UpdateTargetCommand) (*dto.TargetDTO, error) {
	target, err := uc.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := entity.TargetPatch{
		URL:        cmd.URL,
		SiteName:   cmd.SiteName,
		PageDetail: cmd.PageDetail,
		Active:     cmd.IsActive,
	}
	if cmd.Network != nil {
		network, err := valueobject.ParseNetworkProfile(*cmd.Network)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		patch.Network = &network
	}

	if err := target.Apply(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := uc.repository.Update(ctx, target); err != nil {
		if errors.Is(err, repository.ErrDuplicateTarget) || errors.Is(err, repository.ErrTargetNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update target: %w", err)
	}

	uc.logger.Info("Target updated", "id", id, "active", target.IsActive())
	uc.invalidateStats(ctx)

	return dto.FromTarget(target), nil
}

// Delete удаляет цель безвозвратно
func (uc *ManageTargetsUseCase) Delete(ctx context.Context, id int64) error {
	if err := uc.repository.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrTargetNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete target: %w", err)
	}

	uc.logger.Info("Target deleted", "id", id)
	uc.invalidateStats(ctx)
	return nil
}

func (uc *ManageTargetsUseCase) invalidateStats(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.InvalidateNamespace(ctx, port.CacheNamespaceStats); err != nil {
		uc.logger.Warn("Failed to invalidate stats cache", "error", err.Error())
	}
}
