package usecase

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/service"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// ImprovementReportConfig задает окно и размер отчета
type ImprovementReportConfig struct {
	Days  int
	Limit int
}

// ImprovementReportUseCase строит рейтинг предложений по улучшению за последние дни
type ImprovementReportUseCase struct {
	measurements repository.MeasurementRepository
	solutions    repository.SolutionRepository
	aggregator   *service.ImprovementAggregator
	cache        port.Cache
	cfg          ImprovementReportConfig
	now          func() time.Time
	logger       *logger.Logger
}

// NewImprovementReportUseCase создает новый use case. cache может быть nil.
func NewImprovementReportUseCase(
	measurements repository.MeasurementRepository,
	solutions repository.SolutionRepository,
	aggregator *service.ImprovementAggregator,
	cache port.Cache,
	cfg ImprovementReportConfig,
	logger *logger.Logger,
) *ImprovementReportUseCase {
	if cfg.Days <= 0 {
		cfg.Days = 10
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}

	return &ImprovementReportUseCase{
		measurements: measurements,
		solutions:    solutions,
		aggregator:   aggregator,
		cache:        cache,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// Execute возвращает отчет, используя кеш при наличии
func (uc *ImprovementReportUseCase) Execute(ctx context.Context) (*dto.ImprovementReportDTO, error) {
	cacheKey := port.CacheKey(port.CacheNamespaceReport, strconv.Itoa(uc.cfg.Days), strconv.Itoa(uc.cfg.Limit))

	if uc.cache != nil {
		var cached dto.ImprovementReportDTO
		if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil {
			uc.logger.Debug("Cache hit for improvement report")
			return &cached, nil
		}
	}

	report, err := uc.build(ctx)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, cacheKey, report); err != nil {
			uc.logger.Warn("Failed to cache improvement report", "error", err.Error())
		}
	}

	return report, nil
}

func (uc *ImprovementReportUseCase) build(ctx context.Context) (*dto.ImprovementReportDTO, error) {
	window, err := valueobject.NewReportWindow(uc.cfg.Days, uc.now())
	if err != nil {
		return nil, fmt.Errorf("invalid report window: %w", err)
	}

	records, err := uc.measurements.FindSince(ctx, window.Start(), true)
	if err != nil {
		uc.logger.Error("Failed to fetch measurements for report", err)
		return nil, fmt.Errorf("failed to fetch measurements: %w", err)
	}

	ranked := uc.aggregator.Rank(records, uc.cfg.Limit)

	// Решения необязательны: без них отчет все равно строится
	solutionByKey := make(map[string]string)
	if uc.solutions != nil {
		solutions, err := uc.solutions.FindAll(ctx)
		if err != nil {
			uc.logger.Warn("Failed to load cached solutions", "error", err.Error())
		}
		for _, s := range solutions {
			solutionByKey[s.IssueKey()] = s.Text()
		}
	}

	issues := make([]*dto.ImprovementIssueDTO, 0, len(ranked))
	for i, stat := range ranked {
		item := &dto.ImprovementIssueDTO{
			Rank:        i + 1,
			IssueKey:    stat.IssueKey,
			Title:       dto.OpportunityLabel(stat.IssueKey),
			Count:       stat.Count,
			TotalImpact: round2(stat.TotalImpact),
			AvgImpact:   round2(stat.AvgImpact),
			PageDetails: stat.PageDetails,
		}
		if item.PageDetails == nil {
			item.PageDetails = []string{}
		}
		if text, ok := solutionByKey[stat.IssueKey]; ok {
			item.Solution = &text
		}
		issues = append(issues, item)
	}

	return &dto.ImprovementReportDTO{
		DateRange: dto.DateRangeDTO{
			Start: window.Start().Format("2006-01-02"),
			End:   window.End().Format("2006-01-02"),
		},
		TotalMeasurements: len(records),
		Issues:            issues,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
