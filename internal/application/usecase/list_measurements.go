package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// DefaultMeasurementsLimit используется, если limit не задан
const DefaultMeasurementsLimit = 10000

// ListMeasurementsUseCase возвращает последние записи измерений
type ListMeasurementsUseCase struct {
	repository repository.MeasurementRepository
	location   *time.Location
	logger     *logger.Logger
}

// NewListMeasurementsUseCase создает новый use case
func NewListMeasurementsUseCase(
	repository repository.MeasurementRepository,
	location *time.Location,
	logger *logger.Logger,
) *ListMeasurementsUseCase {
	if location == nil {
		location = time.UTC
	}
	return &ListMeasurementsUseCase{
		repository: repository,
		location:   location,
		logger:     logger,
	}
}

// Execute возвращает не более limit записей, новые первыми
func (uc *ListMeasurementsUseCase) Execute(ctx context.Context, limit int) (*dto.MeasurementListDTO, error) {
	if limit <= 0 || limit > DefaultMeasurementsLimit {
		limit = DefaultMeasurementsLimit
	}

	records, err := uc.repository.FindRecent(ctx, limit)
	if err != nil {
		uc.logger.Error("Failed to fetch measurements", err)
		return nil, fmt.Errorf("failed to fetch measurements: %w", err)
	}

	uc.logger.Debug("Fetched measurements", "count", len(records))

	return &dto.MeasurementListDTO{
		Measurements: dto.ToMeasurementDTOs(records, uc.location),
		Count:        len(records),
	}, nil
}

// PurgeMeasurementsUseCase удаляет все записи и сбрасывает кеш чтения
type PurgeMeasurementsUseCase struct {
	repository repository.MeasurementRepository
	cache      port.Cache
	logger     *logger.Logger
}

// NewPurgeMeasurementsUseCase создает новый use case
func NewPurgeMeasurementsUseCase(
	repository repository.MeasurementRepository,
	cache port.Cache,
	logger *logger.Logger,
) *PurgeMeasurementsUseCase {
	return &PurgeMeasurementsUseCase{
		repository: repository,
		cache:      cache,
		logger:     logger,
	}
}

// Execute удаляет все записи и возвращает их число
func (uc *PurgeMeasurementsUseCase) Execute(ctx context.Context) (int64, error) {
	deleted, err := uc.repository.DeleteAll(ctx)
	if err != nil {
		uc.logger.Error("Failed to purge measurements", err)
		return 0, fmt.Errorf("failed to purge measurements: %w", err)
	}

	uc.logger.Info("Measurements purged", "deleted", deleted)
	invalidateReadCache(ctx, uc.cache, uc.logger)

	return deleted, nil
}

func invalidateReadCache(ctx context.Context, cache port.Cache, log *logger.Logger) {
	if cache == nil {
		return
	}
	for _, namespace := range port.ReadSideNamespaces {
		if err := cache.InvalidateNamespace(ctx, namespace); err != nil {
			log.Warn("Failed to invalidate cache", "namespace", namespace, "error", err.Error())
		}
	}
}
