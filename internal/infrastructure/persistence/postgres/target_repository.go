package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/model"
)

// PostgresTargetRepository реализует repository.TargetRepository для PostgreSQL
type PostgresTargetRepository struct {
	db *sql.DB
}

// NewPostgresTargetRepository создает новый PostgreSQL repository реестра целей
func NewPostgresTargetRepository(db *sql.DB) *PostgresTargetRepository {
	return &PostgresTargetRepository{db: db}
}

// FindActive возвращает активные цели, отсортированные по id
func (r *PostgresTargetRepository) FindActive(
	ctx context.Context,
	filter valueobject.NetworkFilter,
) ([]*entity.Target, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if filter.IsAll() {
		rows, err = r.db.QueryContext(ctx, targetSelect+` WHERE is_active = TRUE ORDER BY id`)
	} else {
		rows, err = r.db.QueryContext(ctx, targetSelect+` WHERE is_active = TRUE AND network = $1 ORDER BY id`,
			filter.Profile().String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active targets: %w", err)
	}
	defer rows.Close()

	return scanTargets(rows)
}

// FindAll возвращает все цели, включая неактивные
func (r *PostgresTargetRepository) FindAll(ctx context.Context) ([]*entity.Target, error) {
	rows, err := r.db.QueryContext(ctx, targetSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	return scanTargets(rows)
}

// FindByID находит цель по идентификатору
func (r *PostgresTargetRepository) FindByID(ctx context.Context, id int64) (*entity.Target, error) {
	row := r.db.QueryRowContext(ctx, targetSelect+` WHERE id = $1`, id)
	target, err := ScanTargetRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to scan target: %w", err)
	}

	return target.ToEntity(), nil
}

// Create сохраняет новую цель
func (r *PostgresTargetRepository) Create(ctx context.Context, target *entity.Target) error {
	m := model.FromTarget(target)

	query := `
		INSERT INTO url_master (url, site_name, page_detail, network, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		m.URL,
		m.SiteName,
		m.PageDetail,
		m.Network,
		m.IsActive,
		m.CreatedAt,
		m.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateTarget
		}
		return fmt.Errorf("failed to insert target: %w", err)
	}

	target.AssignID(id)
	return nil
}

// Update сохраняет изменения цели
func (r *PostgresTargetRepository) Update(ctx context.Context, target *entity.Target) error {
	m := model.FromTarget(target)

	query := `
		UPDATE url_master
		SET url = $2, site_name = $3, page_detail = $4, network = $5, is_active = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.URL,
		m.SiteName,
		m.PageDetail,
		m.Network,
		m.IsActive,
		m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateTarget
		}
		return fmt.Errorf("failed to update target: %w", err)
	}

	return requireAffected(result)
}

// Delete удаляет цель безвозвратно. Записи измерений остаются с url_master_id = NULL.
func (r *PostgresTargetRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM url_master WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	return requireAffected(result)
}

// CountActive возвращает число активных целей
func (r *PostgresTargetRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM url_master WHERE is_active = TRUE`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active targets: %w", err)
	}
	return count, nil
}

func scanTargets(rows *sql.Rows) ([]*entity.Target, error) {
	targets := make([]*entity.Target, 0)
	for rows.Next() {
		m, err := ScanTargetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, m.ToEntity())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return targets, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrTargetNotFound
	}
	return nil
}
