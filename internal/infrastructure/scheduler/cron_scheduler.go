// Package scheduler triggers recurring measurement runs on a cron expression.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// RunStarter is the part of the run coordinator the scheduler needs.
type RunStarter interface {
	Start(ctx context.Context, req usecase.RunRequest) (usecase.RunTicket, error)
}

// CronScheduler fires a scheduled run for all networks on every tick.
type CronScheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
	location *time.Location
	starter  RunStarter
	logger   *logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entryID cron.EntryID
	started bool
}

// NewCronScheduler validates the 5-field expression in loc.
func NewCronScheduler(spec string, loc *time.Location, starter RunStarter, log *logger.Logger) (*CronScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	return &CronScheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		schedule: schedule,
		spec:     spec,
		location: loc,
		starter:  starter,
		logger:   log,
	}, nil
}

// Start registers the job and starts the cron loop.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	entryID, err := s.cron.AddFunc(s.spec, func() { s.Trigger(s.ctx) })
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule measurement run: %w", err)
	}
	s.entryID = entryID
	s.started = true
	s.cron.Start()

	next, _ := s.nextRunLocked()
	s.logger.Info("Measurement scheduler started",
		"schedule", s.spec,
		"timezone", s.location.String(),
		"next_run", next.Format(time.RFC3339))
	return nil
}

// Stop stops the cron loop and waits for a running trigger call to return.
// Runs already accepted by the coordinator keep going.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()
	s.logger.Info("Measurement scheduler stopped")
}

// Trigger starts one scheduled run. A run already in progress is logged as a skip.
func (s *CronScheduler) Trigger(ctx context.Context) {
	s.logger.Info("Cron triggered measurement run", "schedule", s.spec)

	ticket, err := s.starter.Start(ctx, usecase.RunRequest{
		Network: valueobject.AllNetworks(),
		Trigger: valueobject.TriggerScheduled,
	})
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		s.logger.Info("Scheduled run skipped: previous run still in progress")
	case err != nil:
		s.logger.Error("Scheduled run failed to start", err)
	default:
		s.logger.Info("Scheduled run accepted", "run_id", ticket.RunID, "total", ticket.Total)
	}
}

// NextRun projects the next tick. ok is false when the scheduler is not running.
func (s *CronScheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunLocked()
}

// nextRunLocked expects s.mu to be held.
func (s *CronScheduler) nextRunLocked() (time.Time, bool) {
	if !s.started {
		return time.Time{}, false
	}
	return s.schedule.Next(time.Now().In(s.location)).UTC(), true
}

// Spec returns the cron expression.
func (s *CronScheduler) Spec() string {
	return s.spec
}
