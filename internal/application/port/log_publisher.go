package port

import (
	"context"
	"time"
)

// LogLevel mirrors the zap level names used by pkg/logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is one logger call: the message plus its key/value pairs.
// Run-scoped calls carry run_id and trigger in Fields, per-target calls add url and network.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Fields    map[string]interface{}
}

// LogPublisher ships log entries to an external sink.
// pkg/logger calls it after writing to stdout, so a failing sink never hides a log line.
type LogPublisher interface {
	Publish(ctx context.Context, entry LogEntry) error
	PublishBatch(ctx context.Context, entries []LogEntry) error
	// Flush is called on shutdown; buffered entries are lost otherwise.
	Flush(ctx context.Context) error
}
