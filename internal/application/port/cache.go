package port

import (
	"context"
	"strings"
)

// Read-side cache namespaces. A namespace is the unit of invalidation: a finished
// run, a purge or a target change drops whole namespaces, never single keys.
const (
	CacheNamespaceStats  = "stats"
	CacheNamespaceReport = "report"
)

// ReadSideNamespaces are dropped after every run and purge.
var ReadSideNamespaces = []string{CacheNamespaceStats, CacheNamespaceReport}

// Cache keeps computed dashboard views (stats, improvement report) between runs.
// Values are JSON-encoded, so dest in Get must be a pointer to a matching type.
type Cache interface {
	// Get fills dest; any error, a miss included, means "recompute".
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	// InvalidateNamespace drops every key built by CacheKey(namespace, ...).
	InvalidateNamespace(ctx context.Context, namespace string) error
	Close() error
}

// CacheKey joins the namespace and key parts with ":".
func CacheKey(namespace string, parts ...string) string {
	return strings.Join(append([]string{namespace}, parts...), ":")
}
