package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "pagespeed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createTarget(t *testing.T, repo *TargetRepository, url string, network valueobject.NetworkProfile) *entity.Target {
	t.Helper()
	target, err := entity.NewTarget(url, "Shop", "main", network)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), target))
	return target
}

func TestTargetRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Targets()

	mobile := createTarget(t, repo, "https://a.example.com", valueobject.Mobile)
	desktop := createTarget(t, repo, "https://a.example.com", valueobject.Desktop)
	assert.NotZero(t, mobile.ID())
	assert.Greater(t, desktop.ID(), mobile.ID())

	duplicate, err := entity.NewTarget("https://a.example.com", "", "", valueobject.Mobile)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, duplicate), repository.ErrDuplicateTarget)

	inactive := false
	require.NoError(t, desktop.Apply(entity.TargetPatch{Active: &inactive}))
	require.NoError(t, repo.Update(ctx, desktop))

	active, err := repo.FindActive(ctx, valueobject.AllNetworks())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, mobile.ID(), active[0].ID())
	assert.Equal(t, "Shop", active[0].SiteName())

	onlyDesktop, err := repo.FindActive(ctx, valueobject.OnlyNetwork(valueobject.Desktop))
	require.NoError(t, err)
	assert.Empty(t, onlyDesktop)

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	found, err := repo.FindByID(ctx, desktop.ID())
	require.NoError(t, err)
	assert.False(t, found.IsActive())

	require.NoError(t, repo.Delete(ctx, desktop.ID()))
	_, err = repo.FindByID(ctx, desktop.ID())
	assert.ErrorIs(t, err, repository.ErrTargetNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, desktop.ID()), repository.ErrTargetNotFound)
}

func TestMeasurementRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	targets := store.Targets()
	repo := store.Measurements()

	target := createTarget(t, targets, "https://a.example.com", valueobject.Mobile)
	base := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	save := func(snapshot entity.MeasurementSnapshot) {
		t.Helper()
		require.NoError(t, repo.Save(ctx, entity.ReconstructMeasurement(snapshot)))
	}

	save(entity.MeasurementSnapshot{
		TargetID: target.ID(), URL: target.URL(), SiteName: "Shop", Network: valueobject.Mobile,
		MeasuredAt: base.Add(-48 * time.Hour), Score: 80, Status: valueobject.StatusNeedsImprovement,
		Metrics:       valueobject.TimingMetrics{LCP: valueobject.Float(3.1), CLS: valueobject.Float(0.12)},
		Findings:      []valueobject.Finding{{Kind: valueobject.FindingLCP, Measured: 3.1, Threshold: 2.5}},
		Opportunities: []valueobject.Opportunity{{Audit: "unused-javascript", SavingsMs: 450}},
	})
	save(entity.MeasurementSnapshot{
		TargetID: target.ID(), URL: target.URL(), Network: valueobject.Mobile,
		MeasuredAt: base.Add(-500 * time.Millisecond), Score: 61, Status: valueobject.StatusNeedsImprovement,
	})
	save(entity.MeasurementSnapshot{
		URL: "https://gone.example.com", Network: valueobject.Desktop,
		MeasuredAt: base, Score: 0, Status: valueobject.StatusFailed, ErrorMessage: "http 500: Internal Server Error",
	})

	recent, err := repo.FindRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "https://gone.example.com", recent[0].URL())
	assert.True(t, recent[0].IsFailed())
	assert.Zero(t, recent[0].TargetID())
	assert.Equal(t, base, recent[0].MeasuredAt())
	assert.Equal(t, base.Add(-500*time.Millisecond), recent[1].MeasuredAt())

	oldest := recent[2]
	assert.Equal(t, target.ID(), oldest.TargetID())
	require.NotNil(t, oldest.Metrics().CLS)
	assert.Equal(t, 0.12, *oldest.Metrics().CLS)
	assert.Nil(t, oldest.Metrics().TBT)
	assert.Equal(t, []valueobject.Opportunity{{Audit: "unused-javascript", SavingsMs: 450}}, oldest.Opportunities())

	limited, err := repo.FindRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	withOpps, err := repo.FindSince(ctx, base.AddDate(0, 0, -10), true)
	require.NoError(t, err)
	require.Len(t, withOpps, 1)
	assert.Equal(t, 80, withOpps[0].Score())

	lastDay, err := repo.FindSince(ctx, base.Add(-time.Hour), false)
	require.NoError(t, err)
	assert.Len(t, lastDay, 2)

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 70.5, summary.AverageScore, 0.001)

	// Deleting a target keeps its measurement history.
	require.NoError(t, targets.Delete(ctx, target.ID()))
	kept, err := repo.FindRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, kept, 3)
	assert.Zero(t, kept[2].TargetID())

	deleted, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	summary, err = repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Count)
	assert.Zero(t, summary.AverageScore)
}

func TestSolutionRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Solutions()

	first, err := entity.NewSolution("unused-javascript", "first")
	require.NoError(t, err)
	second, err := entity.NewSolution("unused-javascript", "second")
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, first))
	require.NoError(t, repo.Upsert(ctx, second))

	solutions, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, solutions, 1)
	assert.Equal(t, "second", solutions[0].Text())
}
