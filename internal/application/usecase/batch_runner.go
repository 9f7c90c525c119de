package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// SubjectMeasurementRecorded публикуется после сохранения каждой записи
const SubjectMeasurementRecorded = "pagespeed.measurement.recorded"

const defaultWriteTimeout = 30 * time.Second

// BatchRunnerConfig содержит настройки прохода по целям
type BatchRunnerConfig struct {
	// Delay между вызовами провайдера. 0 отключает паузу.
	Delay time.Duration
	// WriteTimeout ограничивает запись одной записи и побочные эффекты
	WriteTimeout time.Duration
	// ReportPrefix задает префикс ключей архива сырых отчетов
	ReportPrefix string
	// DisplayLocation используется только в DTO для рассылки
	DisplayLocation *time.Location
}

// BatchSideEffects содержит необязательные порты. nil отключает соответствующий эффект.
type BatchSideEffects struct {
	Archive  port.ReportArchive
	Metrics  port.MetricsPublisher
	Events   port.EventPublisher
	Notifier port.NotificationService
	Stats    port.RunMetrics
}

// ProgressFunc вызывается после обработки каждой цели
type ProgressFunc func(target *entity.Target, record *entity.MeasurementRecord, succeeded bool)

// BatchResult содержит итоговые счетчики прохода
type BatchResult struct {
	Attempted   int
	Completed   int
	Failed      int
	Interrupted bool
}

// BatchRunner последовательно измеряет цели и сохраняет по одной записи на каждую попытку
type BatchRunner struct {
	prober       port.Prober
	measurements repository.MeasurementRepository
	effects      BatchSideEffects
	cfg          BatchRunnerConfig
	logger       *logger.Logger
}

// NewBatchRunner создает новый BatchRunner
func NewBatchRunner(
	prober port.Prober,
	measurements repository.MeasurementRepository,
	effects BatchSideEffects,
	cfg BatchRunnerConfig,
	logger *logger.Logger,
) *BatchRunner {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReportPrefix == "" {
		cfg.ReportPrefix = "reports"
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}

	return &BatchRunner{
		prober:       prober,
		measurements: measurements,
		effects:      effects,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run обрабатывает цели в порядке списка.
// Отмена ctx останавливает проход перед следующей целью; уже начатая попытка все равно сохраняется.
func (r *BatchRunner) Run(ctx context.Context, targets []*entity.Target, progress ProgressFunc) BatchResult {
	var result BatchResult
	total := len(targets)

	for i, target := range targets {
		if ctx.Err() != nil {
			result.Interrupted = true
			r.logger.Warn("Batch interrupted before next target",
				"attempted", result.Attempted,
				"total", total)
			break
		}

		record, succeeded := r.processTarget(ctx, i+1, total, target)

		result.Attempted++
		if succeeded {
			result.Completed++
		} else {
			result.Failed++
		}

		if progress != nil {
			progress(target, record, succeeded)
		}

		if i < total-1 && !r.wait(ctx) {
			result.Interrupted = true
			break
		}
	}

	r.flushMetrics(ctx)

	return result
}

// processTarget выполняет один шаг: измерение, привязка цели, архив, сохранение, рассылка
func (r *BatchRunner) processTarget(ctx context.Context, index, total int, target *entity.Target) (*entity.MeasurementRecord, bool) {
	started := time.Now()
	probe := r.probeSafely(ctx, target)

	record := probe.Record
	if record == nil {
		record = entity.NewFailureRecord(target.URL(), target.Network(), "unknown: empty probe result")
	}
	record.AttachTarget(target)
	succeeded := !record.IsFailed()

	if r.effects.Stats != nil {
		r.effects.Stats.ObserveProbe(record.Network().String(), record.Status().String(), time.Since(started))
	}

	if succeeded {
		r.logger.Info(fmt.Sprintf("[%d/%d] Measurement completed", index, total),
			"url", record.URL(),
			"network", record.Network().String(),
			"score", record.Score(),
			"status", record.Status().String())
	} else {
		r.logger.Warn(fmt.Sprintf("[%d/%d] Measurement failed", index, total),
			"url", record.URL(),
			"network", record.Network().String(),
			"error", record.ErrorMessage())
	}

	// Запись не должна зависеть от отмены запуска
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.WriteTimeout)
	defer cancel()

	r.archiveReport(writeCtx, record, probe.RawReport)

	if err := r.measurements.Save(writeCtx, record); err != nil {
		r.logger.Error("Failed to persist measurement record", err,
			"target_id", target.ID(),
			"url", record.URL())
		if r.effects.Stats != nil {
			r.effects.Stats.IncPersistFailures()
		}
	}

	r.publish(writeCtx, record)

	return record, succeeded
}

// probeSafely превращает панику провайдера в запись Failed
func (r *BatchRunner) probeSafely(ctx context.Context, target *entity.Target) (result port.ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Prober panicked", fmt.Errorf("%v", rec), "target_id", target.ID())
			result = port.ProbeResult{
				Record: entity.NewFailureRecord(target.URL(), target.Network(), fmt.Sprintf("unknown: %v", rec)),
			}
		}
	}()

	return r.prober.Probe(ctx, target.URL(), target.Network())
}

func (r *BatchRunner) archiveReport(ctx context.Context, record *entity.MeasurementRecord, raw []byte) {
	if r.effects.Archive == nil || len(raw) == 0 {
		return
	}

	key := r.reportKey(record)
	url, err := r.effects.Archive.PutReport(ctx, key, raw)
	if err != nil {
		r.logger.Warn("Failed to archive raw report", "key", key, "error", err.Error())
		return
	}
	record.SetReportURL(url)
}

// reportKey строит ключ вида prefix/network/YYYY/MM/DD/20260207T123456Z_target-7.json
func (r *BatchRunner) reportKey(record *entity.MeasurementRecord) string {
	measuredAt := record.MeasuredAt().UTC()
	name := fmt.Sprintf("%s_target-%d.json", measuredAt.Format("20060102T150405Z"), record.TargetID())

	return path.Join(
		strings.Trim(r.cfg.ReportPrefix, "/"),
		strings.ToLower(record.Network().String()),
		measuredAt.Format("2006/01/02"),
		name,
	)
}

func (r *BatchRunner) publish(ctx context.Context, record *entity.MeasurementRecord) {
	if r.effects.Metrics != nil {
		if err := r.effects.Metrics.PublishMeasurement(ctx, record); err != nil {
			r.logger.Warn("Failed to publish measurement metrics", "error", err.Error())
		}
	}

	if r.effects.Events == nil && r.effects.Notifier == nil {
		return
	}

	measurement := dto.FromMeasurement(record, r.cfg.DisplayLocation)

	if r.effects.Events != nil {
		if err := r.effects.Events.PublishEvent(ctx, SubjectMeasurementRecorded, measurement); err != nil {
			r.logger.Warn("Failed to publish measurement event", "error", err.Error())
		}
	}
	if r.effects.Notifier != nil {
		r.effects.Notifier.BroadcastMeasurement(measurement)
	}
}

func (r *BatchRunner) flushMetrics(ctx context.Context) {
	if r.effects.Metrics == nil {
		return
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.effects.Metrics.Flush(flushCtx); err != nil {
		r.logger.Warn("Failed to flush measurement metrics", "error", err.Error())
	}
}

// wait выдерживает паузу между вызовами. false означает отмену.
func (r *BatchRunner) wait(ctx context.Context) bool {
	if r.cfg.Delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(r.cfg.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
