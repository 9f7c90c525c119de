// Package model holds the row shapes shared by the relational and REST result stores.
package model

import (
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

// MeasurementRow mirrors one row of the measurements table.
// Nullable columns are pointers so the same struct scans from SQL and decodes from JSON.
type MeasurementRow struct {
	ID               int64     `json:"id,omitempty"`
	TargetID         *int64    `json:"url_master_id"`
	MeasuredAt       time.Time `json:"measured_at"`
	URL              string    `json:"url"`
	SiteName         *string   `json:"site_name"`
	PageDetail       *string   `json:"page_detail"`
	Network          string    `json:"network"`
	PerformanceScore int       `json:"performance_score"`
	Status           string    `json:"status"`
	FCP              *float64  `json:"fcp"`
	LCP              *float64  `json:"lcp"`
	TBT              *float64  `json:"tbt"`
	SpeedIndex       *float64  `json:"speed_index"`
	CLS              *float64  `json:"cls"`
	TTI              *float64  `json:"tti"`
	Issues           *string   `json:"issues"`
	Suggestions      *string   `json:"suggestions"`
	Error            *string   `json:"error"`
	ReportURL        *string   `json:"report_url"`
}

// MeasurementColumns lists the columns in the order Args and the scanners expect them.
const MeasurementColumns = `url_master_id, measured_at, url, site_name, page_detail, network,
	performance_score, status, fcp, lcp, tbt, speed_index, cls, tti,
	issues, suggestions, error, report_url`

// FromMeasurement converts a domain record into its row shape.
func FromMeasurement(record *entity.MeasurementRecord) MeasurementRow {
	s := record.Snapshot()

	row := MeasurementRow{
		ID:               s.ID,
		MeasuredAt:       s.MeasuredAt.UTC(),
		URL:              s.URL,
		SiteName:         optionalString(s.SiteName),
		PageDetail:       optionalString(s.PageDetail),
		Network:          s.Network.String(),
		PerformanceScore: s.Score,
		Status:           s.Status.String(),
		FCP:              s.Metrics.FCP,
		LCP:              s.Metrics.LCP,
		TBT:              s.Metrics.TBT,
		SpeedIndex:       s.Metrics.SpeedIndex,
		CLS:              s.Metrics.CLS,
		TTI:              s.Metrics.TTI,
		Issues:           optionalString(valueobject.EncodeFindings(s.Findings)),
		Suggestions:      optionalString(valueobject.EncodeOpportunities(s.Opportunities)),
		Error:            optionalString(s.ErrorMessage),
		ReportURL:        optionalString(s.ReportURL),
	}
	if s.TargetID > 0 {
		id := s.TargetID
		row.TargetID = &id
	}

	return row
}

// Args returns the insert arguments in MeasurementColumns order.
// measuredAt lets each dialect bind the timestamp in its own representation.
func (r MeasurementRow) Args(measuredAt interface{}) []interface{} {
	return []interface{}{
		r.TargetID,
		measuredAt,
		r.URL,
		r.SiteName,
		r.PageDetail,
		r.Network,
		r.PerformanceScore,
		r.Status,
		r.FCP,
		r.LCP,
		r.TBT,
		r.SpeedIndex,
		r.CLS,
		r.TTI,
		r.Issues,
		r.Suggestions,
		r.Error,
		r.ReportURL,
	}
}

// ToEntity rebuilds the domain record. Unknown status values fall back to the score-derived one.
func (r MeasurementRow) ToEntity() *entity.MeasurementRecord {
	status, err := valueobject.ParsePerformanceStatus(r.Status)
	if err != nil {
		status = valueobject.StatusFromScore(r.PerformanceScore)
		if r.Error != nil && *r.Error != "" {
			status = valueobject.StatusFailed
		}
	}

	network, err := valueobject.ParseNetworkProfile(r.Network)
	if err != nil {
		network = valueobject.NetworkProfile(r.Network)
	}

	snapshot := entity.MeasurementSnapshot{
		ID:         r.ID,
		URL:        r.URL,
		SiteName:   deref(r.SiteName),
		PageDetail: deref(r.PageDetail),
		Network:    network,
		MeasuredAt: r.MeasuredAt,
		Score:      r.PerformanceScore,
		Status:     status,
		Metrics: valueobject.TimingMetrics{
			FCP:        r.FCP,
			LCP:        r.LCP,
			TBT:        r.TBT,
			CLS:        r.CLS,
			SpeedIndex: r.SpeedIndex,
			TTI:        r.TTI,
		},
		Findings:      valueobject.DecodeFindings(deref(r.Issues)),
		Opportunities: valueobject.DecodeOpportunities(deref(r.Suggestions)),
		ErrorMessage:  deref(r.Error),
		ReportURL:     deref(r.ReportURL),
	}
	if r.TargetID != nil {
		snapshot.TargetID = *r.TargetID
	}

	return entity.ReconstructMeasurement(snapshot)
}

// ScanDest returns scan destinations for "id, " + MeasurementColumns.
// measuredAt receives the timestamp column; the caller converts it when the dialect stores text.
func (r *MeasurementRow) ScanDest(measuredAt interface{}) []interface{} {
	return []interface{}{
		&r.ID,
		&r.TargetID,
		measuredAt,
		&r.URL,
		&r.SiteName,
		&r.PageDetail,
		&r.Network,
		&r.PerformanceScore,
		&r.Status,
		&r.FCP,
		&r.LCP,
		&r.TBT,
		&r.SpeedIndex,
		&r.CLS,
		&r.TTI,
		&r.Issues,
		&r.Suggestions,
		&r.Error,
		&r.ReportURL,
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
