package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

type fakeStarter struct {
	mu       sync.Mutex
	requests []usecase.RunRequest
	err      error
}

func (f *fakeStarter) Start(_ context.Context, req usecase.RunRequest) (usecase.RunTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return usecase.RunTicket{}, f.err
	}
	return usecase.RunTicket{RunID: "run-1", Total: 2, Network: req.Network}, nil
}

func TestNewCronScheduler_RejectsInvalidSpec(t *testing.T) {
	_, err := NewCronScheduler("61 2 * * *", time.UTC, &fakeStarter{}, logger.New("error"))
	assert.ErrorContains(t, err, "invalid cron expression")

	_, err = NewCronScheduler("0 0 2 * * *", time.UTC, &fakeStarter{}, logger.New("error"))
	assert.Error(t, err, "six-field expressions are not accepted")
}

func TestCronScheduler_TriggerStartsScheduledRunForAllNetworks(t *testing.T) {
	starter := &fakeStarter{}
	s, err := NewCronScheduler("0 2 * * *", time.UTC, starter, logger.New("error"))
	require.NoError(t, err)

	s.Trigger(context.Background())

	require.Len(t, starter.requests, 1)
	assert.Equal(t, valueobject.TriggerScheduled, starter.requests[0].Trigger)
	assert.True(t, starter.requests[0].Network.IsAll())
}

func TestCronScheduler_TriggerSkipsWhenRunning(t *testing.T) {
	starter := &fakeStarter{err: usecase.ErrRunInProgress}
	s, err := NewCronScheduler("0 2 * * *", time.UTC, starter, logger.New("error"))
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Trigger(context.Background()) })
	assert.Len(t, starter.requests, 1)
}

func TestCronScheduler_NextRunUsesLocation(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	s, err := NewCronScheduler("0 2 * * *", seoul, &fakeStarter{}, logger.New("error"))
	require.NoError(t, err)

	_, ok := s.NextRun()
	assert.False(t, ok, "not started yet")

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	next, ok := s.NextRun()
	require.True(t, ok)
	assert.Equal(t, time.UTC, next.Location())
	local := next.In(seoul)
	assert.Equal(t, 2, local.Hour())
	assert.Equal(t, 0, local.Minute())
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(25*time.Hour)))
}

func TestCronScheduler_StopIsIdempotent(t *testing.T) {
	s, err := NewCronScheduler("@every 1h", time.UTC, &fakeStarter{}, logger.New("error"))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	_, ok := s.NextRun()
	assert.False(t, ok)
}
