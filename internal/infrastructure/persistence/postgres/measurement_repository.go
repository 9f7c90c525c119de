package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/model"
)

// PostgresMeasurementRepository реализует repository.MeasurementRepository для PostgreSQL
type PostgresMeasurementRepository struct {
	db *sql.DB
}

// NewPostgresMeasurementRepository создает новый PostgreSQL repository результатов
func NewPostgresMeasurementRepository(db *sql.DB) *PostgresMeasurementRepository {
	return &PostgresMeasurementRepository{db: db}
}

// Save сохраняет одну запись и присваивает ей id
func (r *PostgresMeasurementRepository) Save(ctx context.Context, record *entity.MeasurementRecord) error {
	m := model.FromMeasurement(record)

	query := `
		INSERT INTO measurements (` + model.MeasurementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, m.Args(m.MeasuredAt)...).Scan(&id); err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}

	record.AssignID(id)
	return nil
}

// FindRecent возвращает последние записи, новые первыми. limit <= 0 снимает ограничение.
func (r *PostgresMeasurementRepository) FindRecent(ctx context.Context, limit int) ([]*entity.MeasurementRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, measurementSelect+` ORDER BY measured_at DESC, id DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, measurementSelect+` ORDER BY measured_at DESC, id DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	return scanMeasurements(rows)
}

// FindSince возвращает записи, измеренные не раньше since
func (r *PostgresMeasurementRepository) FindSince(
	ctx context.Context,
	since time.Time,
	withOpportunities bool,
) ([]*entity.MeasurementRecord, error) {
	query := measurementSelect + ` WHERE measured_at >= $1`
	if withOpportunities {
		query += ` AND suggestions IS NOT NULL AND suggestions <> ''`
	}
	query += ` ORDER BY measured_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	return scanMeasurements(rows)
}

// Summary возвращает среднюю оценку (только оценки > 0) и общее число записей
func (r *PostgresMeasurementRepository) Summary(ctx context.Context) (repository.MeasurementSummary, error) {
	query := `
		SELECT COALESCE(AVG(performance_score) FILTER (WHERE performance_score > 0), 0), COUNT(*)
		FROM measurements
	`

	var summary repository.MeasurementSummary
	if err := r.db.QueryRowContext(ctx, query).Scan(&summary.AverageScore, &summary.Count); err != nil {
		return repository.MeasurementSummary{}, fmt.Errorf("failed to summarize measurements: %w", err)
	}

	return summary, nil
}

// DeleteAll удаляет все записи
func (r *PostgresMeasurementRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM measurements`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete measurements: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return deleted, nil
}

// scanMeasurements сканирует несколько строк в слайс записей
func scanMeasurements(rows *sql.Rows) ([]*entity.MeasurementRecord, error) {
	records := make([]*entity.MeasurementRecord, 0)

	for rows.Next() {
		m, err := ScanMeasurementRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement row: %w", err)
		}
		records = append(records, m.ToEntity())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}
