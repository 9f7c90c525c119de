package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

type coordinatorFixture struct {
	targets      *memTargetRepo
	prober       *fakeProber
	measurements *memMeasurementRepo
	cache        *fakeCache
	events       *fakeEvents
	notifier     *fakeNotifier
	history      *fakeHistory
	stats        *fakeRunMetrics
	coordinator  *RunCoordinator
}

func newCoordinatorFixture(t *testing.T, scripts map[string]probeScript, watchdog time.Duration, urls ...string) *coordinatorFixture {
	t.Helper()

	f := &coordinatorFixture{
		targets:      newMemTargetRepo(urls...),
		prober:       newFakeProber(scripts),
		measurements: newMemMeasurementRepo(),
		cache:        newFakeCache(),
		events:       &fakeEvents{},
		notifier:     &fakeNotifier{},
		history:      &fakeHistory{},
		stats:        &fakeRunMetrics{},
	}

	runner := NewBatchRunner(f.prober, f.measurements, BatchSideEffects{
		Notifier: f.notifier,
		Stats:    f.stats,
	}, BatchRunnerConfig{}, testLogger())

	f.coordinator = NewRunCoordinator(f.targets, runner, RunCoordinatorEffects{
		Cache:    f.cache,
		Events:   f.events,
		Notifier: f.notifier,
		History:  f.history,
		Stats:    f.stats,
	}, RunCoordinatorConfig{Watchdog: watchdog}, testLogger())

	return f
}

func waitDone(t *testing.T, ticket RunTicket) {
	t.Helper()
	select {
	case <-ticket.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish in time")
	}
}

func TestRunCoordinator_IdleStatus(t *testing.T) {
	f := newCoordinatorFixture(t, nil, time.Hour)

	status := f.coordinator.Status()
	assert.False(t, status.Running)
	assert.Equal(t, string(valueobject.RunIdle), status.Outcome)
	assert.Zero(t, status.Total)
	assert.Nil(t, status.StartedAt)
}

// Scenario A
func TestRunCoordinator_AllSucceed(t *testing.T) {
	f := newCoordinatorFixture(t, map[string]probeScript{
		"https://a.example.com": {score: 95},
		"https://b.example.com": {score: 70},
		"https://c.example.com": {score: 10},
	}, time.Hour, "https://a.example.com", "https://b.example.com", "https://c.example.com")

	ticket, err := f.coordinator.Start(context.Background(), RunRequest{Network: valueobject.AllNetworks()})
	require.NoError(t, err)
	assert.Equal(t, 3, ticket.Total)
	assert.NotEmpty(t, ticket.RunID)
	waitDone(t, ticket)

	status := f.coordinator.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.Completed)
	assert.Equal(t, 0, status.Failed)
	assert.Equal(t, string(valueobject.RunCompleted), status.Outcome)
	assert.Equal(t, "succeeded: 3, failed: 0", status.Message)
	assert.Equal(t, string(valueobject.TriggerManual), status.Trigger)
	require.NotNil(t, status.FinishedAt)

	records := f.measurements.Records()
	require.Len(t, records, 3)
	assert.Equal(t, valueobject.StatusGood, records[0].Status())
	assert.Equal(t, valueobject.StatusNeedsImprovement, records[1].Status())
	assert.Equal(t, valueobject.StatusPoor, records[2].Status())

	assert.Equal(t, []string{"stats", "report"}, f.cache.Deleted())
	assert.Equal(t, []string{SubjectRunStarted, SubjectRunFinished}, f.events.Subjects())
	require.Len(t, f.notifier.Finished(), 1)
	require.Len(t, f.history.summaries, 1)
	assert.Equal(t, ticket.RunID, f.history.summaries[0].RunID)
	assert.Equal(t, []string{string(valueobject.RunCompleted)}, f.stats.runs)
	assert.False(t, f.stats.running)
}

// Scenario B
func TestRunCoordinator_PartialFailure(t *testing.T) {
	f := newCoordinatorFixture(t, map[string]probeScript{
		"https://a.example.com": {err: "timeout: provider did not answer in 2m30s"},
		"https://b.example.com": {score: 88},
	}, time.Hour, "https://a.example.com", "https://b.example.com")

	ticket, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	waitDone(t, ticket)

	status := f.coordinator.Status()
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, string(valueobject.RunPartiallyFailed), status.Outcome)

	records := f.measurements.Records()
	require.Len(t, records, 2)
	assert.Equal(t, valueobject.StatusFailed, records[0].Status())
	assert.Equal(t, 0, records[0].Score())
	assert.NotEmpty(t, records[0].ErrorMessage())
	assert.Equal(t, valueobject.StatusNeedsImprovement, records[1].Status())
}

func TestRunCoordinator_TotalFailure(t *testing.T) {
	f := newCoordinatorFixture(t, map[string]probeScript{
		"https://a.example.com": {err: "http 500"},
		"https://b.example.com": {err: "host not found"},
	}, time.Hour, "https://a.example.com", "https://b.example.com")

	ticket, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	waitDone(t, ticket)

	status := f.coordinator.Status()
	assert.Equal(t, string(valueobject.RunTotallyFailed), status.Outcome)
	assert.Equal(t, "succeeded: 0, failed: 2", status.Message)
}

// Scenario C
func TestRunCoordinator_NoTargets(t *testing.T) {
	f := newCoordinatorFixture(t, nil, time.Hour)

	ticket, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, ticket.Total)
	waitDone(t, ticket)

	status := f.coordinator.Status()
	assert.False(t, status.Running)
	assert.Zero(t, status.Total)
	assert.Zero(t, status.Completed)
	assert.Zero(t, status.Failed)
	assert.Equal(t, string(valueobject.RunCompleted), status.Outcome)
	assert.Equal(t, NoTargetsMessage, status.Message)
	assert.Empty(t, f.prober.Calls())
}

func TestRunCoordinator_NetworkFilter(t *testing.T) {
	f := newCoordinatorFixture(t, nil, time.Hour, "https://a.example.com")

	ticket, err := f.coordinator.Start(context.Background(), RunRequest{Network: valueobject.OnlyNetwork(valueobject.Desktop)})
	require.NoError(t, err)
	waitDone(t, ticket)

	assert.Equal(t, 0, ticket.Total)
	assert.Equal(t, "Desktop", f.coordinator.Status().Network)
}

func TestRunCoordinator_LoadFailure(t *testing.T) {
	f := newCoordinatorFixture(t, nil, time.Hour, "https://a.example.com")
	f.targets.loadErr = errors.New("connection refused")

	_, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.Error(t, err)

	status := f.coordinator.Status()
	assert.False(t, status.Running)
	assert.Equal(t, string(valueobject.RunTotallyFailed), status.Outcome)
	assert.Contains(t, status.Message, "connection refused")

	// Гард освобожден
	f.targets.loadErr = nil
	ticket, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	waitDone(t, ticket)
}

// Scenario D
func TestRunCoordinator_SingleFlight(t *testing.T) {
	urls := make([]string, 10)
	scripts := make(map[string]probeScript, 10)
	block := make(chan struct{})
	for i := range urls {
		urls[i] = fmt.Sprintf("https://%d.example.com", i)
		scripts[urls[i]] = probeScript{score: 90}
	}
	scripts[urls[0]] = probeScript{score: 90, block: block}

	f := newCoordinatorFixture(t, scripts, time.Hour, urls...)

	first, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	<-f.prober.started

	_, err = f.coordinator.Start(context.Background(), RunRequest{Trigger: valueobject.TriggerScheduled})
	assert.ErrorIs(t, err, ErrRunInProgress)

	status := f.coordinator.Status()
	assert.True(t, status.Running)
	assert.Equal(t, first.RunID, status.RunID)
	assert.Equal(t, 10, status.Total)
	assert.Zero(t, status.Completed+status.Failed)

	close(block)
	waitDone(t, first)

	status = f.coordinator.Status()
	assert.Equal(t, 10, status.Completed)
	assert.Len(t, f.measurements.Records(), 10)
	assert.Len(t, f.prober.Calls(), 10)
}

func TestRunCoordinator_StatusMonotonic(t *testing.T) {
	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com", "https://d.example.com"}
	f := newCoordinatorFixture(t, map[string]probeScript{
		urls[1]: {err: "timeout"},
		urls[3]: {panics: true},
	}, time.Hour, urls...)

	ticket, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	waitDone(t, ticket)

	statuses := f.notifier.Statuses()
	require.NotEmpty(t, statuses)

	prevCompleted, prevFailed := 0, 0
	for _, s := range statuses {
		assert.GreaterOrEqual(t, s.Completed, prevCompleted)
		assert.GreaterOrEqual(t, s.Failed, prevFailed)
		assert.LessOrEqual(t, s.Completed+s.Failed, s.Total)
		prevCompleted, prevFailed = s.Completed, s.Failed
	}
	assert.Equal(t, 2, prevCompleted)
	assert.Equal(t, 2, prevFailed)
}

func TestRunCoordinator_WatchdogReleasesGuard(t *testing.T) {
	block := make(chan struct{})
	f := newCoordinatorFixture(t, map[string]probeScript{
		"https://a.example.com": {score: 90, block: block},
	}, 50*time.Millisecond, "https://a.example.com", "https://b.example.com")

	first, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	<-f.prober.started

	require.Eventually(t, func() bool {
		return !f.coordinator.IsRunning()
	}, 5*time.Second, 10*time.Millisecond)

	status := f.coordinator.Status()
	assert.True(t, status.TimedOut)
	assert.Equal(t, first.RunID, status.RunID)
	assert.Equal(t, string(valueobject.RunTotallyFailed), status.Outcome)

	// Поздний прогресс старого запуска не влияет на статус
	close(block)
	waitDone(t, first)

	status = f.coordinator.Status()
	assert.Zero(t, status.Completed)
	assert.True(t, status.TimedOut)

	// Попытка, начатая до срабатывания watchdog, все равно сохранена, следующая цель не запускалась
	assert.Len(t, f.measurements.Records(), 1)
	assert.Equal(t, []string{"https://a.example.com"}, f.prober.Calls())
	assert.Len(t, f.notifier.Finished(), 1)
}

func TestRunCoordinator_HistoryInMemory(t *testing.T) {
	targets := newMemTargetRepo("https://a.example.com")
	runner := NewBatchRunner(newFakeProber(nil), newMemMeasurementRepo(), BatchSideEffects{}, BatchRunnerConfig{}, testLogger())
	coordinator := NewRunCoordinator(targets, runner, RunCoordinatorEffects{}, RunCoordinatorConfig{}, testLogger())

	for i := 0; i < 3; i++ {
		ticket, err := coordinator.Start(context.Background(), RunRequest{Trigger: valueobject.TriggerCLI})
		require.NoError(t, err)
		waitDone(t, ticket)
	}

	history, err := coordinator.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "cli", history[0].Trigger)
	assert.Equal(t, coordinator.Status().RunID, history[0].RunID)
}

func TestRunCoordinator_NextScheduledRun(t *testing.T) {
	f := newCoordinatorFixture(t, nil, time.Hour)
	next := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	f.coordinator.SetNextRunFunc(func() (time.Time, bool) { return next, true })

	status := f.coordinator.Status()
	require.NotNil(t, status.NextScheduledRun)
	assert.Equal(t, next, *status.NextScheduledRun)
}

func TestRunCoordinator_Shutdown(t *testing.T) {
	block := make(chan struct{})
	f := newCoordinatorFixture(t, map[string]probeScript{
		"https://a.example.com": {score: 90, block: block},
	}, time.Hour, "https://a.example.com", "https://b.example.com")

	ticket, err := f.coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	<-f.prober.started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.coordinator.Shutdown(ctx))
	waitDone(t, ticket)

	assert.Equal(t, []string{"https://a.example.com"}, f.prober.Calls())
	assert.Equal(t, string(valueobject.RunPartiallyFailed), f.coordinator.Status().Outcome)
}

// slowCache задерживает первую инвалидацию, пока тест не закроет release
type slowCache struct {
	*fakeCache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (c *slowCache) InvalidateNamespace(ctx context.Context, namespace string) error {
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	return c.fakeCache.InvalidateNamespace(ctx, namespace)
}

func TestRunCoordinator_SlowFinalizeDoesNotLeakIntoNextRun(t *testing.T) {
	const url = "https://a.example.com"
	prober := newFakeProber(map[string]probeScript{url: {score: 90}})
	notifier := &fakeNotifier{}
	stats := &fakeRunMetrics{}
	cache := &slowCache{fakeCache: newFakeCache(), entered: make(chan struct{}), release: make(chan struct{})}

	runner := NewBatchRunner(prober, newMemMeasurementRepo(), BatchSideEffects{}, BatchRunnerConfig{}, testLogger())
	coordinator := NewRunCoordinator(newMemTargetRepo(url), runner, RunCoordinatorEffects{
		Cache:    cache,
		Notifier: notifier,
		Stats:    stats,
	}, RunCoordinatorConfig{Watchdog: time.Hour}, testLogger())

	first, err := coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)

	// Первый запуск освободил гард, но его финализация еще идет
	<-cache.entered
	assert.False(t, coordinator.IsRunning())

	block := make(chan struct{})
	prober.mu.Lock()
	prober.scripts[url] = probeScript{score: 80, block: block}
	prober.mu.Unlock()

	second, err := coordinator.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.True(t, stats.Running())

	close(cache.release)
	waitDone(t, first)
	assert.True(t, stats.Running(), "finalization of the first run must not reset the gauge")

	close(block)
	waitDone(t, second)
	assert.False(t, stats.Running())

	order := notifier.Order()
	firstFinished := slices.Index(order, "finished:"+first.RunID)
	secondStarted := slices.Index(order, "status:"+second.RunID)
	require.NotEqual(t, -1, firstFinished)
	require.NotEqual(t, -1, secondStarted)
	assert.Less(t, firstFinished, secondStarted)
}
