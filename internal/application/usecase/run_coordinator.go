package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// ErrRunInProgress возвращается, если запуск уже выполняется
var ErrRunInProgress = errors.New("measurement run already in progress")

const (
	// SubjectRunStarted публикуется при старте непустого запуска
	SubjectRunStarted = "pagespeed.run.started"
	// SubjectRunFinished публикуется при любом терминальном исходе
	SubjectRunFinished = "pagespeed.run.finished"

	// NoTargetsMessage возвращается, когда активных целей нет
	NoTargetsMessage = "no active targets to measure"

	defaultWatchdog        = 3 * time.Hour
	defaultFinalizeTimeout = 10 * time.Second
	recentRunsCapacity     = 50
)

// RunRequest описывает запрос на запуск
type RunRequest struct {
	Network valueobject.NetworkFilter
	Trigger valueobject.RunTrigger
}

// RunTicket подтверждает принятый запуск
type RunTicket struct {
	RunID   string
	Total   int
	Network valueobject.NetworkFilter
	// Done закрывается после финализации запуска
	Done <-chan struct{}
}

// RunCoordinatorConfig содержит настройки координатора
type RunCoordinatorConfig struct {
	// Watchdog ограничивает длительность запуска
	Watchdog        time.Duration
	FinalizeTimeout time.Duration
	DisplayLocation *time.Location
}

// RunCoordinatorEffects содержит необязательные порты финализации
type RunCoordinatorEffects struct {
	Cache    port.Cache
	Events   port.EventPublisher
	Notifier port.NotificationService
	History  port.RunHistoryRepository
	Stats    port.RunMetrics
}

// NextRunFunc возвращает время следующего запуска по расписанию
type NextRunFunc func() (time.Time, bool)

// runState хранит состояние не более одного запуска. Защищено RunCoordinator.mu.
type runState struct {
	runID      string
	running    bool
	total      int
	completed  int
	failed     int
	outcome    valueobject.RunOutcome
	message    string
	network    valueobject.NetworkFilter
	trigger    valueobject.RunTrigger
	timedOut   bool
	startedAt  time.Time
	finishedAt time.Time
}

// RunCoordinator обеспечивает single-flight выполнение запусков и отдает снимок статуса.
// Ручной запуск, CLI и расписание проходят через один экземпляр.
type RunCoordinator struct {
	targets repository.TargetRepository
	runner  *BatchRunner
	effects RunCoordinatorEffects
	cfg     RunCoordinatorConfig
	logger  *logger.Logger

	mu      sync.Mutex
	state   runState
	cancel  context.CancelFunc
	nextRun NextRunFunc
	recent  []port.RunSummary

	// notifyMu упорядочивает уведомления разных запусков:
	// run_finished предыдущего уходит раньше run_status следующего.
	// Захватывается до mu, никогда после.
	notifyMu sync.Mutex

	wg sync.WaitGroup
}

// NewRunCoordinator создает новый координатор в состоянии Idle
func NewRunCoordinator(
	targets repository.TargetRepository,
	runner *BatchRunner,
	effects RunCoordinatorEffects,
	cfg RunCoordinatorConfig,
	logger *logger.Logger,
) *RunCoordinator {
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = defaultWatchdog
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}

	return &RunCoordinator{
		targets: targets,
		runner:  runner,
		effects: effects,
		cfg:     cfg,
		logger:  logger,
		state:   runState{outcome: valueobject.RunIdle},
	}
}

// SetNextRunFunc подключает проекцию следующего запуска по расписанию
func (c *RunCoordinator) SetNextRunFunc(fn NextRunFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRun = fn
}

// Start принимает запуск синхронно и выполняет его в фоне.
// Возвращает ErrRunInProgress, если другой запуск еще выполняется.
func (c *RunCoordinator) Start(ctx context.Context, req RunRequest) (RunTicket, error) {
	if req.Trigger == "" {
		req.Trigger = valueobject.TriggerManual
	}

	c.mu.Lock()
	if c.state.running {
		runID := c.state.runID
		c.mu.Unlock()
		c.logger.Info("Measurement run skipped: already running",
			"trigger", string(req.Trigger),
			"active_run_id", runID)
		return RunTicket{}, ErrRunInProgress
	}

	runID := uuid.NewString()
	c.state = runState{
		runID:     runID,
		running:   true,
		outcome:   valueobject.RunRunning,
		network:   req.Network,
		trigger:   req.Trigger,
		startedAt: time.Now().UTC(),
	}
	c.setRunningGaugeLocked(true)
	c.mu.Unlock()

	// Гард уже захвачен: второй запрос во время загрузки целей получит ErrRunInProgress
	targets, err := c.targets.FindActive(ctx, req.Network)
	if err != nil {
		c.logger.Error("Failed to load active targets", err, "run_id", runID)
		c.finish(runID, func(s *runState) {
			s.outcome = valueobject.RunTotallyFailed
			s.message = fmt.Sprintf("failed to load targets: %v", err)
		})
		return RunTicket{}, fmt.Errorf("failed to load active targets: %w", err)
	}

	done := make(chan struct{})

	if len(targets) == 0 {
		c.logger.Info("Measurement run has nothing to do",
			"run_id", runID,
			"network", req.Network.String())
		c.finish(runID, func(s *runState) {
			s.outcome = valueobject.RunCompleted
			s.message = NoTargetsMessage
		})
		close(done)
		return RunTicket{RunID: runID, Total: 0, Network: req.Network, Done: done}, nil
	}

	// Контекст запуска не зависит от запроса, но сохраняет его значения
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.state.total = len(targets)
	c.cancel = cancel
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Info("Measurement run started",
		"run_id", runID,
		"trigger", string(req.Trigger),
		"network", req.Network.String(),
		"total", len(targets))

	watchdog := time.AfterFunc(c.cfg.Watchdog, func() { c.expire(runID) })

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer cancel()
		defer watchdog.Stop()

		// ждет финализации предыдущего запуска, поэтому не в Start
		c.announce(runCtx, status)

		result := c.runner.Run(runCtx, targets, c.progressFor(runID))

		c.finish(runID, func(s *runState) {
			s.outcome = valueobject.ClassifyRun(s.total, s.completed, s.failed)
			s.message = summaryText(s.completed, s.failed)
			if result.Interrupted {
				s.message += " (interrupted)"
			}
		})
	}()

	return RunTicket{RunID: runID, Total: len(targets), Network: req.Network, Done: done}, nil
}

// progressFor обновляет счетчики только для текущего запуска
func (c *RunCoordinator) progressFor(runID string) ProgressFunc {
	return func(_ *entity.Target, record *entity.MeasurementRecord, succeeded bool) {
		c.mu.Lock()
		if c.state.runID != runID || !c.state.running {
			c.mu.Unlock()
			c.logger.Debug("Ignoring progress from superseded run", "run_id", runID, "url", record.URL())
			return
		}
		if succeeded {
			c.state.completed++
		} else {
			c.state.failed++
		}
		status := c.statusLocked()
		c.mu.Unlock()

		if c.effects.Notifier != nil {
			c.effects.Notifier.BroadcastRunStatus(status)
		}
	}
}

// expire срабатывает по watchdog: отменяет запуск и освобождает гард
func (c *RunCoordinator) expire(runID string) {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	released := c.finish(runID, func(s *runState) {
		s.timedOut = true
		s.outcome = valueobject.ClassifyRun(s.total, s.completed, s.failed)
		s.message = fmt.Sprintf("timed out after %s, %s", c.cfg.Watchdog, summaryText(s.completed, s.failed))
	})
	if !released {
		return
	}

	c.logger.Warn("Measurement run exceeded watchdog, guard released",
		"run_id", runID,
		"watchdog", c.cfg.Watchdog.String())

	if cancel != nil {
		cancel()
	}
}

// finish переводит запуск в терминальное состояние, если runID все еще текущий.
// Возвращает false, если запуск уже финализирован (например, по watchdog).
func (c *RunCoordinator) finish(runID string, apply func(s *runState)) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.state.runID != runID || !c.state.running {
		c.mu.Unlock()
		return false
	}

	apply(&c.state)
	c.state.running = false
	c.state.finishedAt = time.Now().UTC()
	c.cancel = nil
	c.setRunningGaugeLocked(false)

	state := c.state
	status := c.statusLocked()
	summary := toRunSummary(state)
	c.recent = append([]port.RunSummary{summary}, c.recent...)
	if len(c.recent) > recentRunsCapacity {
		c.recent = c.recent[:recentRunsCapacity]
	}
	c.mu.Unlock()

	c.logger.Info("Measurement run finished",
		"run_id", runID,
		"outcome", string(state.outcome),
		"total", state.total,
		"completed", state.completed,
		"failed", state.failed,
		"timed_out", state.timedOut,
		"duration", state.finishedAt.Sub(state.startedAt).String())
	if status.NextScheduledRun != nil {
		c.logger.Info("Next scheduled run", "at", status.NextScheduledRun.In(c.cfg.DisplayLocation).Format(time.RFC3339))
	}

	c.finalize(status, summary, state.finishedAt.Sub(state.startedAt))
	return true
}

// finalize выполняет побочные эффекты завершения. Ошибки только логируются.
func (c *RunCoordinator) finalize(status *dto.RunStatusDTO, summary port.RunSummary, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FinalizeTimeout)
	defer cancel()

	invalidateReadCache(ctx, c.effects.Cache, c.logger)

	if c.effects.Events != nil {
		if err := c.effects.Events.PublishEvent(ctx, SubjectRunFinished, status); err != nil {
			c.logger.Warn("Failed to publish run finished event", "error", err.Error())
		}
	}

	if c.effects.Notifier != nil {
		c.effects.Notifier.BroadcastRunFinished(status)
	}

	if c.effects.History != nil {
		if err := c.effects.History.Put(ctx, summary); err != nil {
			c.logger.Warn("Failed to store run summary", "run_id", summary.RunID, "error", err.Error())
		}
	}

	if c.effects.Stats != nil {
		c.effects.Stats.ObserveRun(summary.Trigger, summary.Outcome, duration)
	}
}

// setRunningGaugeLocked меняет gauge вместе с гардом, чтобы поздняя финализация
// старого запуска не сбросила его во время следующего
func (c *RunCoordinator) setRunningGaugeLocked(running bool) {
	if c.effects.Stats != nil {
		c.effects.Stats.SetRunning(running)
	}
}

func (c *RunCoordinator) announce(ctx context.Context, status *dto.RunStatusDTO) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if c.effects.Events != nil {
		pubCtx, cancel := context.WithTimeout(ctx, c.cfg.FinalizeTimeout)
		defer cancel()
		if err := c.effects.Events.PublishEvent(pubCtx, SubjectRunStarted, status); err != nil {
			c.logger.Warn("Failed to publish run started event", "error", err.Error())
		}
	}
	if c.effects.Notifier != nil {
		c.effects.Notifier.BroadcastRunStatus(status)
	}
}

// Status возвращает снимок статуса. Безопасно вызывать в любой момент.
func (c *RunCoordinator) Status() *dto.RunStatusDTO {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// IsRunning сообщает, захвачен ли гард
func (c *RunCoordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.running
}

// History возвращает последние запуски: из хранилища, если оно настроено, иначе из памяти
func (c *RunCoordinator) History(ctx context.Context, limit int) ([]*dto.RunSummaryDTO, error) {
	if limit <= 0 {
		limit = 20
	}

	var summaries []port.RunSummary
	if c.effects.History != nil {
		stored, err := c.effects.History.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list run history: %w", err)
		}
		summaries = stored
	} else {
		c.mu.Lock()
		summaries = append([]port.RunSummary(nil), c.recent...)
		c.mu.Unlock()
		if len(summaries) > limit {
			summaries = summaries[:limit]
		}
	}

	result := make([]*dto.RunSummaryDTO, len(summaries))
	for i, s := range summaries {
		result[i] = &dto.RunSummaryDTO{
			RunID:      s.RunID,
			Trigger:    s.Trigger,
			Network:    s.Network,
			Outcome:    s.Outcome,
			Total:      s.Total,
			Completed:  s.Completed,
			Failed:     s.Failed,
			TimedOut:   s.TimedOut,
			Message:    s.Message,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
		}
	}
	return result, nil
}

// Shutdown отменяет текущий запуск и ждет завершения фоновой горутины
func (c *RunCoordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RunCoordinator) statusLocked() *dto.RunStatusDTO {
	s := c.state
	status := &dto.RunStatusDTO{
		RunID:     s.runID,
		Running:   s.running,
		Total:     s.total,
		Completed: s.completed,
		Failed:    s.failed,
		Outcome:   string(s.outcome),
		Message:   s.message,
		Trigger:   string(s.trigger),
		TimedOut:  s.timedOut,
	}
	if s.runID != "" {
		status.Network = s.network.String()
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		status.StartedAt = &startedAt
	}
	if !s.finishedAt.IsZero() {
		finishedAt := s.finishedAt
		status.FinishedAt = &finishedAt
	}
	if c.nextRun != nil {
		if next, ok := c.nextRun(); ok {
			status.NextScheduledRun = &next
		}
	}
	return status
}

func toRunSummary(s runState) port.RunSummary {
	return port.RunSummary{
		RunID:      s.runID,
		Trigger:    string(s.trigger),
		Network:    s.network.String(),
		Outcome:    string(s.outcome),
		Total:      s.total,
		Completed:  s.completed,
		Failed:     s.failed,
		TimedOut:   s.timedOut,
		Message:    s.message,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
}

func summaryText(completed, failed int) string {
	return fmt.Sprintf("succeeded: %d, failed: %d", completed, failed)
}
