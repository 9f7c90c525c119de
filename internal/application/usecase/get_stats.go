package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// GetStatsUseCase возвращает сводные показатели с кешированием
type GetStatsUseCase struct {
	measurements repository.MeasurementRepository
	targets      repository.TargetRepository
	cache        port.Cache
	logger       *logger.Logger
}

// NewGetStatsUseCase создает новый use case. cache может быть nil.
func NewGetStatsUseCase(
	measurements repository.MeasurementRepository,
	targets repository.TargetRepository,
	cache port.Cache,
	logger *logger.Logger,
) *GetStatsUseCase {
	return &GetStatsUseCase{
		measurements: measurements,
		targets:      targets,
		cache:        cache,
		logger:       logger,
	}
}

// Execute выполняет получение статистики
func (uc *GetStatsUseCase) Execute(ctx context.Context) (*dto.StatsDTO, error) {
	cacheKey := port.CacheKey(port.CacheNamespaceStats, "summary")

	if uc.cache != nil {
		var cached dto.StatsDTO
		if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil {
			uc.logger.Debug("Cache hit for stats")
			return &cached, nil
		}
	}

	summary, err := uc.measurements.Summary(ctx)
	if err != nil {
		uc.logger.Error("Failed to fetch measurement summary", err)
		return nil, fmt.Errorf("failed to fetch measurement summary: %w", err)
	}

	activeTargets, err := uc.targets.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active targets: %w", err)
	}

	stats := &dto.StatsDTO{
		AverageScore:      math.Round(summary.AverageScore*10) / 10,
		ActiveTargets:     activeTargets,
		TotalMeasurements: summary.Count,
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, cacheKey, stats); err != nil {
			uc.logger.Warn("Failed to cache stats", "error", err.Error())
		}
	}

	return stats, nil
}
