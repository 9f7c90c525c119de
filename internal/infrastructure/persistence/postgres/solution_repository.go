package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/model"
)

// PostgresSolutionRepository хранит сгенерированные решения в improvement_suggestions
type PostgresSolutionRepository struct {
	db *sql.DB
}

func NewPostgresSolutionRepository(db *sql.DB) *PostgresSolutionRepository {
	return &PostgresSolutionRepository{db: db}
}

func (r *PostgresSolutionRepository) FindAll(ctx context.Context) ([]*entity.Solution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT issue_key, solution, updated_at FROM improvement_suggestions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query solutions: %w", err)
	}
	defer rows.Close()

	solutions := make([]*entity.Solution, 0)
	for rows.Next() {
		var m model.SolutionRow
		if err := rows.Scan(&m.IssueKey, &m.Solution, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan solution: %w", err)
		}
		solutions = append(solutions, m.ToEntity())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return solutions, nil
}

// Upsert перезаписывает решение по ключу
func (r *PostgresSolutionRepository) Upsert(ctx context.Context, solution *entity.Solution) error {
	m := model.FromSolution(solution)

	query := `
		INSERT INTO improvement_suggestions (issue_key, solution, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (issue_key) DO UPDATE SET solution = EXCLUDED.solution, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, m.IssueKey, m.Solution, m.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert solution: %w", err)
	}

	return nil
}
