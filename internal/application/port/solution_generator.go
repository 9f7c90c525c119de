package port

import (
	"context"
	"errors"
)

// ErrSolutionProviderDisabled is returned when no text generation provider is configured.
var ErrSolutionProviderDisabled = errors.New("solution provider is disabled")

// SolutionRequest describes the issue a remediation text is generated for.
type SolutionRequest struct {
	IssueKey string
	Title    string
	Prompt   string
}

// SolutionGenerator produces remediation text through an external text generation provider.
type SolutionGenerator interface {
	Generate(ctx context.Context, req SolutionRequest) (string, error)
	Name() string
}
