package port

import (
	"context"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
)

// MetricsPublisher exports per-target scores and Core Web Vitals as time series.
// The batch runner calls PublishMeasurement for every stored record and Flush once
// the run is over; a failing exporter never fails the run.
type MetricsPublisher interface {
	PublishMeasurement(ctx context.Context, record *entity.MeasurementRecord) error
	Flush(ctx context.Context) error
}
