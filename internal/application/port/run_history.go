package port

import (
	"context"
	"time"
)

// RunSummary is the persisted outcome of one finished batch run.
type RunSummary struct {
	RunID      string
	Trigger    string
	Network    string
	Outcome    string
	Total      int
	Completed  int
	Failed     int
	TimedOut   bool
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunHistoryRepository keeps run summaries for the history view.
type RunHistoryRepository interface {
	Put(ctx context.Context, summary RunSummary) error
	// ListRecent returns summaries newest first.
	ListRecent(ctx context.Context, limit int) ([]RunSummary, error)
}
