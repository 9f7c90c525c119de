package port

import "context"

// EventPublisher fans run lifecycle events out to a message broker.
// Subjects are the usecase.Subject* constants; event is JSON-encoded by the adapter.
// Publishing is best effort: callers log the error and carry on with the run.
type EventPublisher interface {
	PublishEvent(ctx context.Context, subject string, event interface{}) error
	Close() error
}
