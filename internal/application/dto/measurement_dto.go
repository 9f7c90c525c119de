package dto

import (
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
)

// FindingDTO представляет превышение порога
type FindingDTO struct {
	Kind      string  `json:"kind"`
	Label     string  `json:"label"`
	Measured  float64 `json:"measured"`
	Threshold float64 `json:"threshold"`
	Text      string  `json:"text"`
}

// OpportunityDTO представляет предложение по улучшению
type OpportunityDTO struct {
	Audit     string  `json:"audit"`
	Label     string  `json:"label"`
	SavingsMs float64 `json:"savings_ms"`
	Text      string  `json:"text"`
}

// MeasurementDTO представляет запись измерения для передачи между слоями
type MeasurementDTO struct {
	ID               int64             `json:"id"`
	TargetID         int64             `json:"url_master_id"`
	URL              string            `json:"url"`
	SiteName         string            `json:"site_name"`
	PageDetail       string            `json:"page_detail"`
	Network          string            `json:"network"`
	MeasuredAt       time.Time         `json:"measured_at"`
	MeasuredAtLocal  string            `json:"measured_at_local"`
	PerformanceScore int               `json:"performance_score"`
	Status           string            `json:"status"`
	FCP              *float64          `json:"fcp"`
	LCP              *float64          `json:"lcp"`
	TBT              *float64          `json:"tbt"`
	CLS              *float64          `json:"cls"`
	SpeedIndex       *float64          `json:"speed_index"`
	TTI              *float64          `json:"tti"`
	Issues           []*FindingDTO     `json:"issues"`
	Suggestions      []*OpportunityDTO `json:"suggestions"`
	Error            string            `json:"error,omitempty"`
	ReportURL        string            `json:"report_url,omitempty"`
}

// FromMeasurement конвертирует Domain Entity в DTO.
// Время хранится в UTC, loc используется только для отображения.
func FromMeasurement(record *entity.MeasurementRecord, loc *time.Location) *MeasurementDTO {
	if loc == nil {
		loc = time.UTC
	}
	metrics := record.Metrics()

	result := &MeasurementDTO{
		ID:               record.ID(),
		TargetID:         record.TargetID(),
		URL:              record.URL(),
		SiteName:         record.SiteName(),
		PageDetail:       record.PageDetail(),
		Network:          record.Network().String(),
		MeasuredAt:       record.MeasuredAt(),
		MeasuredAtLocal:  record.MeasuredAt().In(loc).Format("2006-01-02 15:04:05"),
		PerformanceScore: record.Score(),
		Status:           record.Status().String(),
		FCP:              metrics.FCP,
		LCP:              metrics.LCP,
		TBT:              metrics.TBT,
		CLS:              metrics.CLS,
		SpeedIndex:       metrics.SpeedIndex,
		TTI:              metrics.TTI,
		Issues:           make([]*FindingDTO, 0),
		Suggestions:      make([]*OpportunityDTO, 0),
		Error:            record.ErrorMessage(),
		ReportURL:        record.ReportURL(),
	}

	for _, f := range record.Findings() {
		result.Issues = append(result.Issues, &FindingDTO{
			Kind:      string(f.Kind),
			Label:     FindingLabel(f.Kind),
			Measured:  f.Measured,
			Threshold: f.Threshold,
			Text:      findingText(f),
		})
	}
	for _, o := range record.Opportunities() {
		result.Suggestions = append(result.Suggestions, &OpportunityDTO{
			Audit:     o.Audit,
			Label:     OpportunityLabel(o.Audit),
			SavingsMs: o.SavingsMs,
			Text:      opportunityText(o),
		})
	}

	return result
}

// ToMeasurementDTOs конвертирует слайс Entity в слайс DTO
func ToMeasurementDTOs(records []*entity.MeasurementRecord, loc *time.Location) []*MeasurementDTO {
	dtos := make([]*MeasurementDTO, len(records))
	for i, r := range records {
		dtos[i] = FromMeasurement(r, loc)
	}
	return dtos
}

// MeasurementListDTO представляет ответ списка измерений
type MeasurementListDTO struct {
	Measurements []*MeasurementDTO `json:"measurements"`
	Count        int               `json:"count"`
}

// StatsDTO содержит сводные показатели для дашборда
type StatsDTO struct {
	AverageScore      float64 `json:"average_score"`
	ActiveTargets     int     `json:"active_urls"`
	TotalMeasurements int     `json:"total_measurements"`
}
