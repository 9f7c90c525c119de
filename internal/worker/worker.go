// Package worker runs the cron scheduler without the public API and exposes a small
// operational surface: health, readiness, run status and an on-demand trigger.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/collector"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// Scheduler is the subset of the cron scheduler the worker drives.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
	NextRun() (time.Time, bool)
	Spec() string
}

// Coordinator is the single-flight run entry point shared with the scheduler.
type Coordinator interface {
	Start(ctx context.Context, req usecase.RunRequest) (usecase.RunTicket, error)
	Status() *dto.RunStatusDTO
}

// ReadinessCheck reports whether the result store is reachable.
type ReadinessCheck func(ctx context.Context) error

// HostSampler reports the load of the host the worker runs on.
type HostSampler interface {
	Collect(ctx context.Context) (collector.HostLoad, error)
}

type Worker struct {
	scheduler   Scheduler
	coordinator Coordinator
	ready       ReadinessCheck
	host        HostSampler
	log         *logger.Logger

	mu        sync.RWMutex
	startedAt time.Time
	running   bool
}

func New(scheduler Scheduler, coordinator Coordinator, ready ReadinessCheck, log *logger.Logger) *Worker {
	return &Worker{
		scheduler:   scheduler,
		coordinator: coordinator,
		ready:       ready,
		log:         log,
	}
}

// SetHostSampler adds host load to the status snapshot.
func (w *Worker) SetHostSampler(sampler HostSampler) {
	w.mu.Lock()
	w.host = sampler
	w.mu.Unlock()
}

// Run starts the scheduler and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	w.mu.Lock()
	w.startedAt = time.Now().UTC()
	w.running = true
	w.mu.Unlock()

	next, _ := w.scheduler.NextRun()
	w.log.Info("Measurement worker started",
		"schedule", w.scheduler.Spec(),
		"next_run", next.Format(time.RFC3339))

	<-ctx.Done()

	w.scheduler.Stop()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.log.Info("Measurement worker stopped")
	return nil
}

// Snapshot is the worker state served by the status endpoint.
type Snapshot struct {
	StartedAt time.Time           `json:"started_at"`
	Uptime    string              `json:"uptime"`
	Schedule  string              `json:"schedule"`
	NextRun   *time.Time          `json:"next_run,omitempty"`
	Run       *dto.RunStatusDTO   `json:"run"`
	Host      *collector.HostLoad `json:"host,omitempty"`
}

func (w *Worker) Snapshot(ctx context.Context) Snapshot {
	w.mu.RLock()
	startedAt := w.startedAt
	host := w.host
	w.mu.RUnlock()

	snapshot := Snapshot{
		StartedAt: startedAt,
		Schedule:  w.scheduler.Spec(),
		Run:       w.coordinator.Status(),
	}
	if !startedAt.IsZero() {
		snapshot.Uptime = time.Since(startedAt).Round(time.Second).String()
	}
	if next, ok := w.scheduler.NextRun(); ok {
		snapshot.NextRun = &next
	}
	if host != nil {
		load, err := host.Collect(ctx)
		if err != nil {
			w.log.Debug("Host load sampled partially", "error", err.Error())
		}
		snapshot.Host = &load
	}
	return snapshot
}

// Ready fails until the scheduler runs and the store answers.
func (w *Worker) Ready(ctx context.Context) error {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	if !running {
		return fmt.Errorf("scheduler is not running")
	}
	if w.ready != nil {
		if err := w.ready(ctx); err != nil {
			return fmt.Errorf("result store unavailable: %w", err)
		}
	}
	return nil
}
