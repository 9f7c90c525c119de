package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
)

func TestNewTarget_Validation(t *testing.T) {
	_, err := NewTarget("", "site", "", valueobject.Mobile)
	assert.Error(t, err)

	_, err = NewTarget("ftp://example.com", "site", "", valueobject.Mobile)
	assert.Error(t, err)

	_, err = NewTarget("https://example.com", "site", "", valueobject.NetworkProfile("Tablet"))
	assert.ErrorIs(t, err, valueobject.ErrInvalidNetworkProfile)

	target, err := NewTarget(" https://example.com/a ", " Shop ", "main", valueobject.Desktop)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", target.URL())
	assert.Equal(t, "Shop", target.SiteName())
	assert.True(t, target.IsActive())
	assert.Equal(t, "UTC", target.CreatedAt().Location().String())
}

func TestTarget_Apply(t *testing.T) {
	target, err := NewTarget("https://example.com", "", "", valueobject.Mobile)
	require.NoError(t, err)

	inactive := false
	desktop := valueobject.Desktop
	require.NoError(t, target.Apply(TargetPatch{Active: &inactive, Network: &desktop}))
	assert.False(t, target.IsActive())
	assert.Equal(t, valueobject.Desktop, target.Network())

	bad := "not a url"
	assert.Error(t, target.Apply(TargetPatch{URL: &bad}))
	assert.Equal(t, "https://example.com", target.URL())
}

func TestMeasurementRecord_Success(t *testing.T) {
	record := NewSuccessRecord("https://example.com", valueobject.Mobile, 70, valueobject.TimingMetrics{
		LCP: valueobject.Float(3.1),
	}, []valueobject.Finding{{Kind: valueobject.FindingLCP, Measured: 3.1, Threshold: 2.5}}, nil)

	assert.Equal(t, valueobject.StatusNeedsImprovement, record.Status())
	assert.False(t, record.IsFailed())
	assert.Len(t, record.Findings(), 1)
	assert.Equal(t, "UTC", record.MeasuredAt().Location().String())

	clamped := NewSuccessRecord("https://example.com", valueobject.Mobile, 140, valueobject.TimingMetrics{}, nil, nil)
	assert.Equal(t, 100, clamped.Score())
}

func TestMeasurementRecord_Failure(t *testing.T) {
	record := NewFailureRecord("https://example.com", valueobject.Desktop, "")

	assert.True(t, record.IsFailed())
	assert.Equal(t, 0, record.Score())
	assert.Equal(t, "unknown", record.ErrorMessage())
	assert.True(t, record.Metrics().IsEmpty())
}

func TestMeasurementRecord_AttachTarget(t *testing.T) {
	now := time.Now()
	target := ReconstructTarget(7, "https://example.com", "Shop", "product", valueobject.Mobile, true, now, now)

	record := NewFailureRecord("", "", "timeout")
	record.AttachTarget(target)

	assert.Equal(t, int64(7), record.TargetID())
	assert.Equal(t, "Shop", record.SiteName())
	assert.Equal(t, "product", record.PageDetail())
	assert.Equal(t, "https://example.com", record.URL())
	assert.Equal(t, valueobject.Mobile, record.Network())
}
