package port

import "github.com/dreschagin/pagespeed-monitor/internal/application/dto"

// NotificationService доставляет ход запуска открытым дашбордам.
// Вызовы не блокируют: подписчик с переполненной очередью отключается, запуск не ждет.
type NotificationService interface {
	BroadcastRunStatus(status *dto.RunStatusDTO)
	BroadcastMeasurement(measurement *dto.MeasurementDTO)
	BroadcastRunFinished(status *dto.RunStatusDTO)
	// ClientCount возвращает число подписчиков
	ClientCount() int
}
