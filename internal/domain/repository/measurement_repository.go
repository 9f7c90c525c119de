package repository

import (
	"context"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
)

// MeasurementSummary содержит агрегаты по всем записям
type MeasurementSummary struct {
	// AverageScore считается только по записям с оценкой > 0
	AverageScore float64
	Count        int
}

// MeasurementRepository определяет интерфейс хранилища результатов (Port)
// Для конвейера хранилище только дополняется: обновлений нет
type MeasurementRepository interface {
	// Save сохраняет одну запись и присваивает ей id
	Save(ctx context.Context, record *entity.MeasurementRecord) error

	// FindRecent возвращает последние записи, новые первыми
	FindRecent(ctx context.Context, limit int) ([]*entity.MeasurementRecord, error)

	// FindSince возвращает записи начиная с since.
	// withOpportunities оставляет только записи с непустыми предложениями.
	FindSince(ctx context.Context, since time.Time, withOpportunities bool) ([]*entity.MeasurementRecord, error)

	// Summary возвращает среднюю оценку и общее число записей
	Summary(ctx context.Context) (MeasurementSummary, error)

	// DeleteAll удаляет все записи и возвращает их число
	DeleteAll(ctx context.Context) (int64, error)
}
