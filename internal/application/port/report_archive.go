package port

import "context"

// ReportArchive stores raw provider reports.
type ReportArchive interface {
	// PutReport uploads the report and returns a URL for reading it back.
	PutReport(ctx context.Context, key string, body []byte) (string, error)
}
