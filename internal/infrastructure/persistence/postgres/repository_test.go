package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

var measurementColumnNames = []string{
	"id", "url_master_id", "measured_at", "url", "site_name", "page_detail", "network",
	"performance_score", "status", "fcp", "lcp", "tbt", "speed_index", "cls", "tti",
	"issues", "suggestions", "error", "report_url",
}

var targetColumnNames = []string{
	"id", "url", "site_name", "page_detail", "network", "is_active", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestMeasurementRepository_Save(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMeasurementRepository(db)

	target := entity.ReconstructTarget(7, "https://shop.example.com", "Shop", "main", valueobject.Mobile, true, time.Now(), time.Now())
	record := entity.NewSuccessRecord("https://shop.example.com", valueobject.Mobile, 42,
		valueobject.TimingMetrics{LCP: valueobject.Float(3.1), TBT: valueobject.Float(420)},
		[]valueobject.Finding{{Kind: valueobject.FindingLCP, Measured: 3.1, Threshold: 2.5}},
		[]valueobject.Opportunity{{Audit: "unused-javascript", SavingsMs: 450}},
	)
	record.AttachTarget(target)

	mock.ExpectQuery("INSERT INTO measurements").
		WithArgs(
			int64(7),
			sqlmock.AnyArg(),
			"https://shop.example.com",
			"Shop",
			"main",
			"Mobile",
			42,
			"Poor",
			nil,
			3.1,
			420.0,
			nil,
			nil,
			nil,
			"lcp=3.1>2.5",
			"unused-javascript=450ms",
			nil,
			nil,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(15)))

	require.NoError(t, repo.Save(context.Background(), record))
	assert.Equal(t, int64(15), record.ID())
}

func TestMeasurementRepository_FindRecent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMeasurementRepository(db)

	measuredAt := time.Date(2026, 1, 13, 17, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows(measurementColumnNames).
		AddRow(int64(2), int64(7), measuredAt, "https://shop.example.com", "Shop", "main", "Desktop",
			91, "Good", 1.2, 2.9, 150.0, 3.0, 0.05, 4.1,
			"lcp=2.9>2.5", "render-blocking-resources=1234ms | unused-javascript=450ms", nil, "https://s3/report.json").
		AddRow(int64(1), nil, measuredAt.Add(-time.Hour), "https://gone.example.com", nil, nil, "Mobile",
			0, "Failed", nil, nil, nil, nil, nil, nil,
			nil, nil, "timeout: deadline exceeded", nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM measurements ORDER BY measured_at DESC, id DESC LIMIT $1")).
		WithArgs(2).
		WillReturnRows(rows)

	records, err := repo.FindRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, int64(7), first.TargetID())
	assert.Equal(t, valueobject.Desktop, first.Network())
	assert.Equal(t, valueobject.StatusGood, first.Status())
	assert.Equal(t, measuredAt, first.MeasuredAt())
	require.NotNil(t, first.Metrics().CLS)
	assert.Equal(t, 0.05, *first.Metrics().CLS)
	assert.Len(t, first.Findings(), 1)
	assert.Len(t, first.Opportunities(), 2)
	assert.Equal(t, "https://s3/report.json", first.ReportURL())

	second := records[1]
	assert.Zero(t, second.TargetID())
	assert.True(t, second.IsFailed())
	assert.True(t, second.Metrics().IsEmpty())
	assert.Equal(t, "timeout: deadline exceeded", second.ErrorMessage())
}

func TestMeasurementRepository_FindSinceWithOpportunities(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMeasurementRepository(db)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE measured_at >= $1 AND suggestions IS NOT NULL AND suggestions <> ''")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows(measurementColumnNames))

	records, err := repo.FindSince(context.Background(), since, true)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMeasurementRepository_SummaryAndDeleteAll(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMeasurementRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FILTER (WHERE performance_score > 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "count"}).AddRow(70.5, 3))
	mock.ExpectExec("DELETE FROM measurements").
		WillReturnResult(sqlmock.NewResult(0, 3))

	summary, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repository.MeasurementSummary{AverageScore: 70.5, Count: 3}, summary)

	deleted, err := repo.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestTargetRepository_FindActiveFiltersNetwork(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresTargetRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = TRUE AND network = $1 ORDER BY id")).
		WithArgs("Desktop").
		WillReturnRows(sqlmock.NewRows(targetColumnNames).
			AddRow(int64(3), "https://a.example.com", "A", nil, "Desktop", true, now, now).
			AddRow(int64(9), "https://b.example.com", nil, "product", "Desktop", true, now, now))

	targets, err := repo.FindActive(context.Background(), valueobject.OnlyNetwork(valueobject.Desktop))
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, int64(3), targets[0].ID())
	assert.Equal(t, "A", targets[0].SiteName())
	assert.Equal(t, "product", targets[1].PageDetail())
}

func TestTargetRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresTargetRepository(db)

	target, err := entity.NewTarget("https://a.example.com", "A", "", valueobject.Mobile)
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO url_master").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery("INSERT INTO url_master").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	require.NoError(t, repo.Create(context.Background(), target))
	assert.Equal(t, int64(4), target.ID())

	err = repo.Create(context.Background(), target)
	assert.ErrorIs(t, err, repository.ErrDuplicateTarget)
}

func TestTargetRepository_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresTargetRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM url_master WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("DELETE FROM url_master").
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.FindByID(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrTargetNotFound)

	err = repo.Delete(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrTargetNotFound)
}

func TestSolutionRepository_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresSolutionRepository(db)

	solution, err := entity.NewSolution("unused-javascript", "split bundles")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (issue_key) DO UPDATE")).
		WithArgs("unused-javascript", "split bundles", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), solution))
}
