package port

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "stats:summary", CacheKey(CacheNamespaceStats, "summary"))
	assert.Equal(t, "report:10:20", CacheKey(CacheNamespaceReport, "10", "20"))
	assert.Equal(t, "stats", CacheKey(CacheNamespaceStats))
}
