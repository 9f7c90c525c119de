package postgres

import (
	"errors"

	"github.com/lib/pq"

	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/model"
)

const (
	measurementSelect = `SELECT id, ` + model.MeasurementColumns + ` FROM measurements`
	targetSelect      = `SELECT id, url, site_name, page_detail, network, is_active, created_at, updated_at FROM url_master`

	uniqueViolation = "23505"
)

// rowScanner покрывает *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ScanMeasurementRow сканирует строку БД в MeasurementRow
func ScanMeasurementRow(row rowScanner) (*model.MeasurementRow, error) {
	var m model.MeasurementRow
	if err := row.Scan(m.ScanDest(&m.MeasuredAt)...); err != nil {
		return nil, err
	}
	m.MeasuredAt = m.MeasuredAt.UTC()
	return &m, nil
}

// ScanTargetRow сканирует строку БД в TargetRow
func ScanTargetRow(row rowScanner) (*model.TargetRow, error) {
	var t model.TargetRow
	err := row.Scan(
		&t.ID,
		&t.URL,
		&t.SiteName,
		&t.PageDetail,
		&t.Network,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isUniqueViolation распознает нарушение уникального ограничения
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
