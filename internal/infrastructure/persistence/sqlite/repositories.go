package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/model"
)

const (
	targetSelect      = `SELECT id, url, site_name, page_detail, network, is_active, created_at, updated_at FROM url_master`
	measurementSelect = `SELECT id, ` + model.MeasurementColumns + ` FROM measurements`
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// TargetRepository implements repository.TargetRepository.
type TargetRepository struct {
	db *sql.DB
}

// FindActive returns active targets ordered by id.
func (r *TargetRepository) FindActive(ctx context.Context, filter valueobject.NetworkFilter) ([]*entity.Target, error) {
	query := targetSelect + ` WHERE is_active = 1`
	var args []interface{}
	if !filter.IsAll() {
		query += ` AND network = ?`
		args = append(args, filter.Profile().String())
	}
	query += ` ORDER BY id`

	return r.query(ctx, query, args...)
}

func (r *TargetRepository) FindAll(ctx context.Context) ([]*entity.Target, error) {
	return r.query(ctx, targetSelect+` ORDER BY id`)
}

func (r *TargetRepository) FindByID(ctx context.Context, id int64) (*entity.Target, error) {
	target, err := scanTarget(r.db.QueryRowContext(ctx, targetSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target by id: %w", err)
	}
	return target, nil
}

func (r *TargetRepository) Create(ctx context.Context, target *entity.Target) error {
	m := model.FromTarget(target)
	query := `INSERT INTO url_master (url, site_name, page_detail, network, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		m.URL, m.SiteName, m.PageDetail, m.Network, m.IsActive, formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateTarget
		}
		return fmt.Errorf("failed to insert target: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read target id: %w", err)
	}
	target.AssignID(id)
	return nil
}

func (r *TargetRepository) Update(ctx context.Context, target *entity.Target) error {
	m := model.FromTarget(target)
	query := `UPDATE url_master SET url = ?, site_name = ?, page_detail = ?, network = ?, is_active = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		m.URL, m.SiteName, m.PageDetail, m.Network, m.IsActive, formatTime(m.UpdatedAt), m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateTarget
		}
		return fmt.Errorf("failed to update target: %w", err)
	}
	return requireAffected(res, repository.ErrTargetNotFound)
}

func (r *TargetRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM url_master WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return requireAffected(res, repository.ErrTargetNotFound)
}

func (r *TargetRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM url_master WHERE is_active = 1`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active targets: %w", err)
	}
	return count, nil
}

func (r *TargetRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Target, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	targets := make([]*entity.Target, 0)
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

func scanTarget(row rowScanner) (*entity.Target, error) {
	var (
		m                    model.TargetRow
		createdAt, updatedAt string
	)
	if err := row.Scan(&m.ID, &m.URL, &m.SiteName, &m.PageDetail, &m.Network, &m.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m.ToEntity(), nil
}

// MeasurementRepository implements repository.MeasurementRepository.
type MeasurementRepository struct {
	db *sql.DB
}

func (r *MeasurementRepository) Save(ctx context.Context, record *entity.MeasurementRecord) error {
	m := model.FromMeasurement(record)
	query := `INSERT INTO measurements (` + model.MeasurementColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, m.Args(formatTime(m.MeasuredAt))...)
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read measurement id: %w", err)
	}
	record.AssignID(id)
	return nil
}

// FindRecent returns the newest records first. A non-positive limit returns everything.
func (r *MeasurementRepository) FindRecent(ctx context.Context, limit int) ([]*entity.MeasurementRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(ctx, measurementSelect+` ORDER BY measured_at DESC, id DESC LIMIT ?`, limit)
}

func (r *MeasurementRepository) FindSince(ctx context.Context, since time.Time, withOpportunities bool) ([]*entity.MeasurementRecord, error) {
	query := measurementSelect + ` WHERE measured_at >= ?`
	if withOpportunities {
		query += ` AND suggestions IS NOT NULL AND suggestions <> ''`
	}
	query += ` ORDER BY measured_at DESC, id DESC`
	return r.query(ctx, query, formatTime(since))
}

func (r *MeasurementRepository) Summary(ctx context.Context) (repository.MeasurementSummary, error) {
	query := `SELECT COALESCE(AVG(CASE WHEN performance_score > 0 THEN performance_score END), 0), COUNT(*) FROM measurements`
	var summary repository.MeasurementSummary
	if err := r.db.QueryRowContext(ctx, query).Scan(&summary.AverageScore, &summary.Count); err != nil {
		return repository.MeasurementSummary{}, fmt.Errorf("failed to summarize measurements: %w", err)
	}
	return summary, nil
}

func (r *MeasurementRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM measurements`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete measurements: %w", err)
	}
	return res.RowsAffected()
}

func (r *MeasurementRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.MeasurementRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.MeasurementRecord, 0)
	for rows.Next() {
		var (
			m          model.MeasurementRow
			measuredAt string
		)
		if err := rows.Scan(m.ScanDest(&measuredAt)...); err != nil {
			return nil, fmt.Errorf("failed to scan measurement row: %w", err)
		}
		m.MeasuredAt = parseTime(measuredAt)
		records = append(records, m.ToEntity())
	}
	return records, rows.Err()
}

// SolutionRepository implements repository.SolutionRepository.
type SolutionRepository struct {
	db *sql.DB
}

func (r *SolutionRepository) FindAll(ctx context.Context) ([]*entity.Solution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT issue_key, solution, updated_at FROM improvement_suggestions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query solutions: %w", err)
	}
	defer rows.Close()

	solutions := make([]*entity.Solution, 0)
	for rows.Next() {
		var (
			m         model.SolutionRow
			updatedAt string
		)
		if err := rows.Scan(&m.IssueKey, &m.Solution, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan solution row: %w", err)
		}
		m.UpdatedAt = parseTime(updatedAt)
		solutions = append(solutions, m.ToEntity())
	}
	return solutions, rows.Err()
}

func (r *SolutionRepository) Upsert(ctx context.Context, solution *entity.Solution) error {
	m := model.FromSolution(solution)
	query := `
INSERT INTO improvement_suggestions (issue_key, solution, updated_at) VALUES (?, ?, ?)
ON CONFLICT(issue_key) DO UPDATE SET solution = excluded.solution, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, query, m.IssueKey, m.Solution, formatTime(m.UpdatedAt)); err != nil {
		return fmt.Errorf("failed to upsert solution: %w", err)
	}
	return nil
}
