package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/service"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

func seedRecord(t *testing.T, repo *memMeasurementRepo, snapshot entity.MeasurementSnapshot) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), entity.ReconstructMeasurement(snapshot)))
}

func TestGetStatsUseCase_CachesResult(t *testing.T) {
	measurements := newMemMeasurementRepo()
	now := time.Now().UTC()
	seedRecord(t, measurements, entity.MeasurementSnapshot{URL: "https://a.example.com", MeasuredAt: now, Score: 80, Status: valueobject.StatusNeedsImprovement})
	seedRecord(t, measurements, entity.MeasurementSnapshot{URL: "https://a.example.com", MeasuredAt: now, Score: 61, Status: valueobject.StatusNeedsImprovement})
	seedRecord(t, measurements, entity.MeasurementSnapshot{URL: "https://b.example.com", MeasuredAt: now, Score: 0, Status: valueobject.StatusFailed})

	targets := newMemTargetRepo("https://a.example.com", "https://b.example.com")
	cache := newFakeCache()
	uc := NewGetStatsUseCase(measurements, targets, cache, testLogger())

	stats, err := uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 70.5, stats.AverageScore)
	assert.Equal(t, 2, stats.ActiveTargets)
	assert.Equal(t, 3, stats.TotalMeasurements)

	_, err = uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestListMeasurementsUseCase(t *testing.T) {
	measurements := newMemMeasurementRepo()
	measuredAt := time.Date(2026, 1, 13, 17, 30, 0, 0, time.UTC)
	seedRecord(t, measurements, entity.MeasurementSnapshot{URL: "https://a.example.com", MeasuredAt: measuredAt, Score: 91, Status: valueobject.StatusGood,
		Findings: []valueobject.Finding{{Kind: valueobject.FindingLCP, Measured: 3.1, Threshold: 2.5}}})
	seedRecord(t, measurements, entity.MeasurementSnapshot{URL: "https://b.example.com", MeasuredAt: measuredAt, Score: 40, Status: valueobject.StatusPoor})

	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	uc := NewListMeasurementsUseCase(measurements, seoul, testLogger())
	list, err := uc.Execute(context.Background(), 0)
	require.NoError(t, err)

	require.Equal(t, 2, list.Count)
	assert.Equal(t, "https://b.example.com", list.Measurements[0].URL)
	first := list.Measurements[1]
	assert.Equal(t, "2026-01-14 02:30:00", first.MeasuredAtLocal)
	assert.Equal(t, measuredAt, first.MeasuredAt)
	require.Len(t, first.Issues, 1)
	assert.Equal(t, "lcp", first.Issues[0].Kind)
	assert.Contains(t, first.Issues[0].Text, "Largest Contentful Paint")

	limited, err := uc.Execute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, limited.Count)
}

func TestPurgeMeasurementsUseCase(t *testing.T) {
	measurements := newMemMeasurementRepo()
	seedRecord(t, measurements, entity.MeasurementSnapshot{URL: "https://a.example.com", MeasuredAt: time.Now().UTC()})
	cache := newFakeCache()

	deleted, err := NewPurgeMeasurementsUseCase(measurements, cache, testLogger()).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Empty(t, measurements.Records())
	assert.Equal(t, []string{"stats", "report"}, cache.Deleted())
}

func TestImprovementReportUseCase(t *testing.T) {
	measurements := newMemMeasurementRepo()
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	seedRecord(t, measurements, entity.MeasurementSnapshot{
		URL: "https://a.example.com", PageDetail: "main", MeasuredAt: now.Add(-time.Hour), Score: 50,
		Opportunities: []valueobject.Opportunity{
			{Audit: "unused-javascript", SavingsMs: 1500},
			{Audit: "offscreen-images", SavingsMs: 300},
		},
	})
	seedRecord(t, measurements, entity.MeasurementSnapshot{
		URL: "https://b.example.com", PageDetail: "product", MeasuredAt: now.Add(-48 * time.Hour), Score: 60,
		Opportunities: []valueobject.Opportunity{{Audit: "unused-javascript", SavingsMs: 2500}},
	})
	// Вне окна
	seedRecord(t, measurements, entity.MeasurementSnapshot{
		URL: "https://c.example.com", PageDetail: "old", MeasuredAt: now.AddDate(0, 0, -20), Score: 60,
		Opportunities: []valueobject.Opportunity{{Audit: "server-response-time", SavingsMs: 9000}},
	})
	// Без предложений
	seedRecord(t, measurements, entity.MeasurementSnapshot{URL: "https://d.example.com", MeasuredAt: now, Score: 99})

	solutions := newMemSolutionRepo()
	solution, err := entity.NewSolution("unused-javascript", "## Root cause\nsplit bundles")
	require.NoError(t, err)
	require.NoError(t, solutions.Upsert(context.Background(), solution))

	cache := newFakeCache()
	uc := NewImprovementReportUseCase(measurements, solutions, service.NewImprovementAggregator(), cache,
		ImprovementReportConfig{Days: 10, Limit: 20}, testLogger())
	uc.now = func() time.Time { return now }

	report, err := uc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, dto.DateRangeDTO{Start: "2026-03-01", End: "2026-03-11"}, report.DateRange)
	assert.Equal(t, 2, report.TotalMeasurements)
	require.Len(t, report.Issues, 2)

	top := report.Issues[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, "unused-javascript", top.IssueKey)
	assert.Equal(t, "Reduce unused JavaScript", top.Title)
	assert.Equal(t, 2, top.Count)
	assert.Equal(t, 4.0, top.TotalImpact)
	assert.Equal(t, 2.0, top.AvgImpact)
	assert.ElementsMatch(t, []string{"main", "product"}, top.PageDetails)
	require.NotNil(t, top.Solution)
	assert.Contains(t, *top.Solution, "split bundles")

	assert.Equal(t, "offscreen-images", report.Issues[1].IssueKey)
	assert.Nil(t, report.Issues[1].Solution)

	_, err = uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

type fakeGenerator struct {
	text     string
	err      error
	requests []port.SolutionRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req port.SolutionRequest) (string, error) {
	g.requests = append(g.requests, req)
	return g.text, g.err
}

func (g *fakeGenerator) Name() string { return "fake" }

func TestGenerateSolutionUseCase(t *testing.T) {
	generator := &fakeGenerator{text: "## Fix\nuse code splitting"}
	solutions := newMemSolutionRepo()
	cache := newFakeCache()
	uc := NewGenerateSolutionUseCase(generator, solutions, cache, testLogger())

	result, err := uc.Execute(context.Background(), " unused-javascript ")
	require.NoError(t, err)
	assert.Equal(t, "unused-javascript", result.IssueKey)
	assert.Equal(t, "fake", result.Provider)
	assert.Equal(t, generator.text, result.Solution)

	require.Len(t, generator.requests, 1)
	assert.Contains(t, generator.requests[0].Prompt, "Reduce unused JavaScript")
	assert.Contains(t, solutions.solutions, "unused-javascript")
	assert.Equal(t, []string{"report"}, cache.Deleted())
}

func TestGenerateSolutionUseCase_Errors(t *testing.T) {
	_, err := NewGenerateSolutionUseCase(nil, nil, nil, testLogger()).Execute(context.Background(), "unused-javascript")
	assert.ErrorIs(t, err, port.ErrSolutionProviderDisabled)

	_, err = NewGenerateSolutionUseCase(&fakeGenerator{}, nil, nil, testLogger()).Execute(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)

	failing := &fakeGenerator{err: errors.New("quota exceeded")}
	_, err = NewGenerateSolutionUseCase(failing, nil, nil, testLogger()).Execute(context.Background(), "unused-javascript")
	assert.ErrorContains(t, err, "quota exceeded")

	// Ошибка сохранения не мешает вернуть решение
	solutions := newMemSolutionRepo()
	solutions.upsertErr = errors.New("table missing")
	result, err := NewGenerateSolutionUseCase(&fakeGenerator{text: "ok"}, solutions, nil, testLogger()).
		Execute(context.Background(), "unused-javascript")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Solution)
}

func TestManageTargetsUseCase(t *testing.T) {
	repo := newMemTargetRepo()
	cache := newFakeCache()
	uc := NewManageTargetsUseCase(repo, cache, testLogger())
	ctx := context.Background()

	created, err := uc.Create(ctx, dto.CreateTargetCommand{URL: "https://shop.example.com", SiteName: "Shop", Network: "mobile"})
	require.NoError(t, err)
	assert.Equal(t, "Mobile", created.Network)
	assert.True(t, created.IsActive)

	_, err = uc.Create(ctx, dto.CreateTargetCommand{URL: "https://shop.example.com", Network: "Mobile"})
	assert.ErrorIs(t, err, repository.ErrDuplicateTarget)

	_, err = uc.Create(ctx, dto.CreateTargetCommand{URL: "https://shop.example.com", Network: "Tablet"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = uc.Create(ctx, dto.CreateTargetCommand{URL: "shop", Network: "Desktop"})
	assert.ErrorIs(t, err, ErrValidation)

	inactive := false
	updated, err := uc.Update(ctx, created.ID, dto.UpdateTargetCommand{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := repo.FindActive(ctx, valueobject.AllNetworks())
	require.NoError(t, err)
	assert.Empty(t, active)

	bad := "Tablet"
	_, err = uc.Update(ctx, created.ID, dto.UpdateTargetCommand{Network: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = uc.Update(ctx, 999, dto.UpdateTargetCommand{})
	assert.ErrorIs(t, err, repository.ErrTargetNotFound)

	require.NoError(t, uc.Delete(ctx, created.ID))
	assert.ErrorIs(t, uc.Delete(ctx, created.ID), repository.ErrTargetNotFound)

	list, err := uc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Contains(t, cache.Deleted(), "stats")
}
