package repository

import (
	"context"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
)

// SolutionRepository хранит сгенерированные решения по ключу предложения
type SolutionRepository interface {
	FindAll(ctx context.Context) ([]*entity.Solution, error)
	Upsert(ctx context.Context, solution *entity.Solution) error
}
