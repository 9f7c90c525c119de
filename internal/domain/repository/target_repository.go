package repository

import (
	"context"
	"errors"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

var (
	// ErrTargetNotFound возвращается, когда цели с таким id нет
	ErrTargetNotFound = errors.New("target not found")

	// ErrDuplicateTarget возвращается при нарушении уникальности (url, network)
	ErrDuplicateTarget = errors.New("target with this url and network already exists")
)

// TargetRepository определяет интерфейс реестра целей (Port)
// Реализация будет в Infrastructure слое
type TargetRepository interface {
	// FindActive возвращает активные цели в стабильном порядке (по id)
	FindActive(ctx context.Context, filter valueobject.NetworkFilter) ([]*entity.Target, error)

	// FindAll возвращает все цели, включая неактивные
	FindAll(ctx context.Context) ([]*entity.Target, error)

	// FindByID находит цель по идентификатору
	FindByID(ctx context.Context, id int64) (*entity.Target, error)

	// Create сохраняет новую цель и присваивает ей id
	Create(ctx context.Context, target *entity.Target) error

	// Update сохраняет изменения цели
	Update(ctx context.Context, target *entity.Target) error

	// Delete удаляет цель безвозвратно
	Delete(ctx context.Context, id int64) error

	// CountActive возвращает число активных целей
	CountActive(ctx context.Context) (int, error)
}
