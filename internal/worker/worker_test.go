package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/usecase"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/collector"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

type fakeScheduler struct {
	mu      sync.Mutex
	started bool
	stopped bool
	next    time.Time
}

func (s *fakeScheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeScheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next, s.started
}

func (s *fakeScheduler) Spec() string { return "0 2 * * *" }

type fakeCoordinator struct {
	mu       sync.Mutex
	requests []usecase.RunRequest
	err      error
}

func (c *fakeCoordinator) Start(_ context.Context, req usecase.RunRequest) (usecase.RunTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return usecase.RunTicket{}, c.err
	}
	c.requests = append(c.requests, req)
	return usecase.RunTicket{RunID: "run-1", Total: 3, Network: req.Network}, nil
}

func (c *fakeCoordinator) Status() *dto.RunStatusDTO {
	return &dto.RunStatusDTO{Outcome: string(valueobject.RunIdle)}
}

type fakeHost struct{}

func (fakeHost) Collect(context.Context) (collector.HostLoad, error) {
	return collector.HostLoad{CPUPercent: 12.5, Cores: 4}, errors.New("disk usage unavailable")
}

func startWorker(t *testing.T, ready ReadinessCheck) (*Worker, *fakeScheduler, *fakeCoordinator) {
	t.Helper()
	scheduler := &fakeScheduler{next: time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC)}
	coordinator := &fakeCoordinator{}
	w := New(scheduler, coordinator, ready, logger.New("error"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		assert.True(t, scheduler.stopped)
	})

	require.Eventually(t, func() bool { return w.Snapshot(context.Background()).Uptime != "" }, time.Second, 5*time.Millisecond)
	return w, scheduler, coordinator
}

func TestWorker_ReadyRequiresRunningScheduler(t *testing.T) {
	w := New(&fakeScheduler{}, &fakeCoordinator{}, nil, logger.New("error"))
	assert.Error(t, w.Ready(context.Background()))
}

func TestHandler_HealthAndStatus(t *testing.T) {
	w, _, _ := startWorker(t, nil)
	w.SetHostSampler(fakeHost{})
	routes := NewHandler(w, middleware.AuthConfig{}).Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "2026-03-11T17:00:00Z", health["next_run"])

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/worker/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "0 2 * * *", snapshot.Schedule)
	assert.Equal(t, "idle", snapshot.Run.Outcome)
	require.NotNil(t, snapshot.Host)
	assert.Equal(t, 4, snapshot.Host.Cores)
	assert.Equal(t, 12.5, snapshot.Host.CPUPercent)
}

func TestHandler_ReadyzFailsWhenStoreDown(t *testing.T) {
	w, _, _ := startWorker(t, func(context.Context) error { return errors.New("connection refused") })
	routes := NewHandler(w, middleware.AuthConfig{}).Routes()

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec.Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)
}

func TestHandler_RunNow(t *testing.T) {
	w, _, coordinator := startWorker(t, nil)
	routes := NewHandler(w, middleware.AuthConfig{Enabled: true, BearerToken: "secret"}).Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/worker/run", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/worker/run?network=Desktop", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, coordinator.requests, 1)
	assert.Equal(t, valueobject.Desktop, coordinator.requests[0].Network.Profile())

	req = httptest.NewRequest(http.MethodPost, "/api/worker/run?network=Tablet", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	coordinator.mu.Lock()
	coordinator.err = usecase.ErrRunInProgress
	coordinator.mu.Unlock()
	req = httptest.NewRequest(http.MethodPost, "/api/worker/run", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
