package port

import (
	"context"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

// ProbeResult carries the normalized record and the raw provider payload.
// RawReport is empty for failure-shaped records.
type ProbeResult struct {
	Record    *entity.MeasurementRecord
	RawReport []byte
}

// Prober measures one (url, network profile) pair through the external provider.
// Implementations never return an error: every failure is encoded as a Failed record.
type Prober interface {
	Probe(ctx context.Context, url string, network valueobject.NetworkProfile) ProbeResult
}
