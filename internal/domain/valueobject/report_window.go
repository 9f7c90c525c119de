package valueobject

import (
	"fmt"
	"time"
)

// MaxReportDays ограничивает окно отчета: дольше записи все равно вычищает purge
const MaxReportDays = 365

// ReportWindow задает окно отчета об улучшениях: последние days суток до момента построения.
// Границы хранятся в UTC, обе включительно.
type ReportWindow struct {
	days  int
	start time.Time
	end   time.Time
}

// NewReportWindow строит окно из days суток, заканчивающееся в now
func NewReportWindow(days int, now time.Time) (ReportWindow, error) {
	if days <= 0 || days > MaxReportDays {
		return ReportWindow{}, fmt.Errorf("report window must be 1..%d days, got %d", MaxReportDays, days)
	}
	if now.IsZero() {
		return ReportWindow{}, fmt.Errorf("report window end is zero")
	}
	end := now.UTC()
	return ReportWindow{days: days, start: end.AddDate(0, 0, -days), end: end}, nil
}

func (w ReportWindow) Days() int        { return w.days }
func (w ReportWindow) Start() time.Time { return w.start }
func (w ReportWindow) End() time.Time   { return w.end }

// Contains сообщает, попадает ли запись в окно
func (w ReportWindow) Contains(t time.Time) bool {
	return !t.Before(w.start) && !t.After(w.end)
}
