package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostCollector_Collect(t *testing.T) {
	load, err := NewHostCollector("").Collect(context.Background())
	require.NoError(t, err)

	assert.Positive(t, load.Cores)
	assert.Positive(t, load.Goroutines)
	assert.Positive(t, load.MemoryTotalMB)
	assert.GreaterOrEqual(t, load.MemoryPercent, 0.0)
	assert.LessOrEqual(t, load.DiskPercent, 100.0)
}

func TestHostCollector_MissingMountIsPartial(t *testing.T) {
	load, err := NewHostCollector("/definitely/not/a/mount").Collect(context.Background())
	assert.Error(t, err)
	assert.Zero(t, load.DiskPercent)
	assert.Positive(t, load.MemoryTotalMB)
}
