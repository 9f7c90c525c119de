package entity

import (
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

// MeasurementRecord представляет результат одной попытки измерения цели (Aggregate Root)
// Создается один раз Batch Runner'ом и больше не изменяется после сохранения
type MeasurementRecord struct {
	id            int64
	targetID      int64
	url           string
	siteName      string
	pageDetail    string
	network       valueobject.NetworkProfile
	measuredAt    time.Time
	score         int
	status        valueobject.PerformanceStatus
	metrics       valueobject.TimingMetrics
	findings      []valueobject.Finding
	opportunities []valueobject.Opportunity
	errorMessage  string
	reportURL     string
}

// NewSuccessRecord создает запись успешного измерения. Статус выводится из оценки.
func NewSuccessRecord(
	rawURL string,
	network valueobject.NetworkProfile,
	score int,
	metrics valueobject.TimingMetrics,
	findings []valueobject.Finding,
	opportunities []valueobject.Opportunity,
) *MeasurementRecord {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &MeasurementRecord{
		url:           rawURL,
		network:       network,
		measuredAt:    time.Now().UTC(),
		score:         score,
		status:        valueobject.StatusFromScore(score),
		metrics:       metrics,
		findings:      append([]valueobject.Finding(nil), findings...),
		opportunities: append([]valueobject.Opportunity(nil), opportunities...),
	}
}

// NewFailureRecord создает запись неудачного измерения: оценка 0, метрики пустые
func NewFailureRecord(rawURL string, network valueobject.NetworkProfile, message string) *MeasurementRecord {
	if message == "" {
		message = "unknown"
	}

	return &MeasurementRecord{
		url:          rawURL,
		network:      network,
		measuredAt:   time.Now().UTC(),
		score:        0,
		status:       valueobject.StatusFailed,
		errorMessage: message,
	}
}

// MeasurementSnapshot используется репозиториями для восстановления записи
type MeasurementSnapshot struct {
	ID            int64
	TargetID      int64
	URL           string
	SiteName      string
	PageDetail    string
	Network       valueobject.NetworkProfile
	MeasuredAt    time.Time
	Score         int
	Status        valueobject.PerformanceStatus
	Metrics       valueobject.TimingMetrics
	Findings      []valueobject.Finding
	Opportunities []valueobject.Opportunity
	ErrorMessage  string
	ReportURL     string
}

// ReconstructMeasurement восстанавливает запись из хранилища (для Repository)
func ReconstructMeasurement(s MeasurementSnapshot) *MeasurementRecord {
	return &MeasurementRecord{
		id:            s.ID,
		targetID:      s.TargetID,
		url:           s.URL,
		siteName:      s.SiteName,
		pageDetail:    s.PageDetail,
		network:       s.Network,
		measuredAt:    s.MeasuredAt.UTC(),
		score:         s.Score,
		status:        s.Status,
		metrics:       s.Metrics,
		findings:      s.Findings,
		opportunities: s.Opportunities,
		errorMessage:  s.ErrorMessage,
		reportURL:     s.ReportURL,
	}
}

// AttachTarget переносит идентичность цели в запись
func (m *MeasurementRecord) AttachTarget(target *Target) {
	if target == nil {
		return
	}
	m.targetID = target.ID()
	m.siteName = target.SiteName()
	m.pageDetail = target.PageDetail()
	if m.url == "" {
		m.url = target.URL()
	}
	if m.network == "" {
		m.network = target.Network()
	}
}

// SetReportURL сохраняет ссылку на архив сырого отчета
func (m *MeasurementRecord) SetReportURL(reportURL string) {
	m.reportURL = reportURL
}

// AssignID устанавливает идентификатор после вставки в хранилище
func (m *MeasurementRecord) AssignID(id int64) {
	m.id = id
}

func (m *MeasurementRecord) ID() int64                                { return m.id }
func (m *MeasurementRecord) TargetID() int64                          { return m.targetID }
func (m *MeasurementRecord) URL() string                              { return m.url }
func (m *MeasurementRecord) SiteName() string                         { return m.siteName }
func (m *MeasurementRecord) PageDetail() string                       { return m.pageDetail }
func (m *MeasurementRecord) Network() valueobject.NetworkProfile      { return m.network }
func (m *MeasurementRecord) MeasuredAt() time.Time                    { return m.measuredAt }
func (m *MeasurementRecord) Score() int                               { return m.score }
func (m *MeasurementRecord) Status() valueobject.PerformanceStatus    { return m.status }
func (m *MeasurementRecord) Metrics() valueobject.TimingMetrics       { return m.metrics }
func (m *MeasurementRecord) ErrorMessage() string                     { return m.errorMessage }
func (m *MeasurementRecord) ReportURL() string                        { return m.reportURL }
func (m *MeasurementRecord) Findings() []valueobject.Finding          { return append([]valueobject.Finding(nil), m.findings...) }
func (m *MeasurementRecord) Opportunities() []valueobject.Opportunity { return append([]valueobject.Opportunity(nil), m.opportunities...) }

// IsFailed сообщает о неуспешной попытке
func (m *MeasurementRecord) IsFailed() bool {
	return m.status.IsFailed()
}

// Snapshot возвращает плоское представление для репозиториев
func (m *MeasurementRecord) Snapshot() MeasurementSnapshot {
	return MeasurementSnapshot{
		ID:            m.id,
		TargetID:      m.targetID,
		URL:           m.url,
		SiteName:      m.siteName,
		PageDetail:    m.pageDetail,
		Network:       m.network,
		MeasuredAt:    m.measuredAt,
		Score:         m.score,
		Status:        m.status,
		Metrics:       m.metrics,
		Findings:      m.Findings(),
		Opportunities: m.Opportunities(),
		ErrorMessage:  m.errorMessage,
		ReportURL:     m.reportURL,
	}
}
