package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error")
}

// probeScript описывает поведение fakeProber для одного URL
type probeScript struct {
	score  int
	err    string
	panics bool
	block  chan struct{}
	raw    []byte
}

type fakeProber struct {
	mu      sync.Mutex
	scripts map[string]probeScript
	calls   []string
	started chan string
}

func newFakeProber(scripts map[string]probeScript) *fakeProber {
	return &fakeProber{scripts: scripts, started: make(chan string, 64)}
}

func (p *fakeProber) Probe(_ context.Context, url string, network valueobject.NetworkProfile) port.ProbeResult {
	p.mu.Lock()
	p.calls = append(p.calls, url)
	script := p.scripts[url]
	p.mu.Unlock()

	p.started <- url

	if script.block != nil {
		<-script.block
	}
	if script.panics {
		panic("provider exploded")
	}
	if script.err != "" {
		return port.ProbeResult{Record: entity.NewFailureRecord(url, network, script.err)}
	}

	return port.ProbeResult{
		Record:    entity.NewSuccessRecord(url, network, script.score, valueobject.TimingMetrics{}, nil, nil),
		RawReport: script.raw,
	}
}

func (p *fakeProber) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type memMeasurementRepo struct {
	mu      sync.Mutex
	records []*entity.MeasurementRecord
	failFor map[string]error
	nextID  int64
}

func newMemMeasurementRepo() *memMeasurementRepo {
	return &memMeasurementRepo{failFor: map[string]error{}}
}

func (r *memMeasurementRepo) Save(_ context.Context, record *entity.MeasurementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[record.URL()]; ok {
		return err
	}
	r.nextID++
	record.AssignID(r.nextID)
	r.records = append(r.records, record)
	return nil
}

func (r *memMeasurementRepo) FindRecent(_ context.Context, limit int) ([]*entity.MeasurementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*entity.MeasurementRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.records[i])
	}
	return result, nil
}

func (r *memMeasurementRepo) FindSince(_ context.Context, since time.Time, withOpportunities bool) ([]*entity.MeasurementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*entity.MeasurementRecord, 0)
	for _, rec := range r.records {
		if rec.MeasuredAt().Before(since) {
			continue
		}
		if withOpportunities && len(rec.Opportunities()) == 0 {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func (r *memMeasurementRepo) Summary(_ context.Context) (repository.MeasurementSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum, n int
	for _, rec := range r.records {
		if rec.Score() > 0 {
			sum += rec.Score()
			n++
		}
	}
	summary := repository.MeasurementSummary{Count: len(r.records)}
	if n > 0 {
		summary.AverageScore = float64(sum) / float64(n)
	}
	return summary, nil
}

func (r *memMeasurementRepo) DeleteAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.records))
	r.records = nil
	return n, nil
}

func (r *memMeasurementRepo) Records() []*entity.MeasurementRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.MeasurementRecord(nil), r.records...)
}

type memTargetRepo struct {
	mu      sync.Mutex
	targets []*entity.Target
	loadErr error
	nextID  int64
}

func newMemTargetRepo(urls ...string) *memTargetRepo {
	repo := &memTargetRepo{}
	for _, u := range urls {
		target, err := entity.NewTarget(u, "site", "page", valueobject.Mobile)
		if err != nil {
			panic(err)
		}
		_ = repo.Create(context.Background(), target)
	}
	return repo
}

func (r *memTargetRepo) FindActive(_ context.Context, filter valueobject.NetworkFilter) ([]*entity.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	result := make([]*entity.Target, 0)
	for _, t := range r.targets {
		if t.IsActive() && filter.Matches(t.Network()) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (r *memTargetRepo) FindAll(_ context.Context) ([]*entity.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.Target(nil), r.targets...), nil
}

func (r *memTargetRepo) FindByID(_ context.Context, id int64) (*entity.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, repository.ErrTargetNotFound
}

func (r *memTargetRepo) Create(_ context.Context, target *entity.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.URL() == target.URL() && t.Network() == target.Network() {
			return repository.ErrDuplicateTarget
		}
	}
	r.nextID++
	target.AssignID(r.nextID)
	r.targets = append(r.targets, target)
	return nil
}

func (r *memTargetRepo) Update(_ context.Context, target *entity.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.targets {
		if t.ID() == target.ID() {
			r.targets[i] = target
			return nil
		}
	}
	return repository.ErrTargetNotFound
}

func (r *memTargetRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.targets {
		if t.ID() == id {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			return nil
		}
	}
	return repository.ErrTargetNotFound
}

func (r *memTargetRepo) CountActive(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.targets {
		if t.IsActive() {
			n++
		}
	}
	return n, nil
}

type memSolutionRepo struct {
	mu        sync.Mutex
	solutions map[string]*entity.Solution
	upsertErr error
}

func newMemSolutionRepo() *memSolutionRepo {
	return &memSolutionRepo{solutions: map[string]*entity.Solution{}}
}

func (r *memSolutionRepo) FindAll(_ context.Context) ([]*entity.Solution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*entity.Solution, 0, len(r.solutions))
	for _, s := range r.solutions {
		result = append(result, s)
	}
	return result, nil
}

func (r *memSolutionRepo) Upsert(_ context.Context, solution *entity.Solution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.solutions[solution.IssueKey()] = solution
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[string]interface{}
	deleted []string
	gets    int
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]interface{}{}}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	value, ok := c.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	c.hits++
	switch d := dest.(type) {
	case *dto.StatsDTO:
		*d = *(value.(*dto.StatsDTO))
	case *dto.ImprovementReportDTO:
		*d = *(value.(*dto.ImprovementReportDTO))
	default:
		return fmt.Errorf("unsupported type %T", dest)
	}
	return nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) InvalidateNamespace(_ context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, namespace)
	prefix := namespace + ":"
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func (c *fakeCache) Close() error { return nil }

func (c *fakeCache) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

type fakeNotifier struct {
	mu           sync.Mutex
	statuses     []dto.RunStatusDTO
	measurements []*dto.MeasurementDTO
	finished     []dto.RunStatusDTO
	// order хранит "status:<run_id>" и "finished:<run_id>" в порядке отправки
	order []string
}

func (n *fakeNotifier) BroadcastRunStatus(status *dto.RunStatusDTO) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, *status)
	n.order = append(n.order, "status:"+status.RunID)
}

func (n *fakeNotifier) BroadcastMeasurement(measurement *dto.MeasurementDTO) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.measurements = append(n.measurements, measurement)
}

func (n *fakeNotifier) BroadcastRunFinished(status *dto.RunStatusDTO) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, *status)
	n.order = append(n.order, "finished:"+status.RunID)
}

func (n *fakeNotifier) ClientCount() int { return 0 }

func (n *fakeNotifier) Statuses() []dto.RunStatusDTO {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dto.RunStatusDTO(nil), n.statuses...)
}

func (n *fakeNotifier) Order() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.order...)
}

func (n *fakeNotifier) Finished() []dto.RunStatusDTO {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dto.RunStatusDTO(nil), n.finished...)
}

type fakeEvents struct {
	mu       sync.Mutex
	subjects []string
}

func (e *fakeEvents) PublishEvent(_ context.Context, subject string, _ interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subjects = append(e.subjects, subject)
	return nil
}

func (e *fakeEvents) Close() error { return nil }

func (e *fakeEvents) Subjects() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.subjects...)
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchive) PutReport(_ context.Context, key string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return "https://reports.example.com/" + key, nil
}

type fakeHistory struct {
	mu        sync.Mutex
	summaries []port.RunSummary
}

func (h *fakeHistory) Put(_ context.Context, summary port.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summaries = append([]port.RunSummary{summary}, h.summaries...)
	return nil
}

func (h *fakeHistory) ListRecent(_ context.Context, limit int) ([]port.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.summaries) > limit {
		return append([]port.RunSummary(nil), h.summaries[:limit]...), nil
	}
	return append([]port.RunSummary(nil), h.summaries...), nil
}

type fakeRunMetrics struct {
	mu             sync.Mutex
	probes         int
	runs           []string
	persistFailure int
	running        bool
}

func (m *fakeRunMetrics) ObserveProbe(_, _ string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes++
}

func (m *fakeRunMetrics) ObserveRun(_, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, outcome)
}

func (m *fakeRunMetrics) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

func (m *fakeRunMetrics) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *fakeRunMetrics) IncPersistFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistFailure++
}
