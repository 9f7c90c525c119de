package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/repository"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

const solutionPromptTemplate = `You are a front-end performance engineer working on a website builder platform.

Give a concrete remediation for the following web performance issue:
"%s" (Lighthouse audit: %s)

Requirements:
1. A front-end engineer should be able to apply it right away
2. Include concrete code examples (JavaScript, CSS, HTML)
3. Keep compatibility with user-provided custom code in mind
4. Mention the expected performance gain
5. List caveats and side effects

Format:
## Root cause
## Fix
### 1. First approach
### 2. Second approach (if any)
## Expected impact
## Caveats`

// GenerateSolutionUseCase генерирует решение для предложения и сохраняет его
type GenerateSolutionUseCase struct {
	generator port.SolutionGenerator
	solutions repository.SolutionRepository
	cache     port.Cache
	logger    *logger.Logger
}

// NewGenerateSolutionUseCase создает новый use case. generator nil означает отключенного провайдера.
func NewGenerateSolutionUseCase(
	generator port.SolutionGenerator,
	solutions repository.SolutionRepository,
	cache port.Cache,
	logger *logger.Logger,
) *GenerateSolutionUseCase {
	return &GenerateSolutionUseCase{
		generator: generator,
		solutions: solutions,
		cache:     cache,
		logger:    logger,
	}
}

// Execute генерирует текст решения для issueKey
func (uc *GenerateSolutionUseCase) Execute(ctx context.Context, issueKey string) (*dto.SolutionDTO, error) {
	issueKey = strings.TrimSpace(issueKey)
	if issueKey == "" {
		return nil, fmt.Errorf("%w: issue key is required", ErrValidation)
	}
	if uc.generator == nil {
		return nil, port.ErrSolutionProviderDisabled
	}

	title := dto.OpportunityLabel(issueKey)
	text, err := uc.generator.Generate(ctx, port.SolutionRequest{
		IssueKey: issueKey,
		Title:    title,
		Prompt:   fmt.Sprintf(solutionPromptTemplate, title, issueKey),
	})
	if err != nil {
		if errors.Is(err, port.ErrSolutionProviderDisabled) {
			return nil, err
		}
		uc.logger.Error("Failed to generate solution", err, "issue_key", issueKey, "provider", uc.generator.Name())
		return nil, fmt.Errorf("failed to generate solution: %w", err)
	}

	solution, err := entity.NewSolution(issueKey, text)
	if err != nil {
		return nil, fmt.Errorf("provider returned unusable solution: %w", err)
	}

	// Ошибка сохранения не мешает вернуть ответ
	if uc.solutions != nil {
		if err := uc.solutions.Upsert(ctx, solution); err != nil {
			uc.logger.Warn("Failed to store solution", "issue_key", issueKey, "error", err.Error())
		} else if uc.cache != nil {
			if err := uc.cache.InvalidateNamespace(ctx, port.CacheNamespaceReport); err != nil {
				uc.logger.Warn("Failed to invalidate report cache", "error", err.Error())
			}
		}
	}

	uc.logger.Info("Solution generated", "issue_key", issueKey, "provider", uc.generator.Name())

	return &dto.SolutionDTO{
		IssueKey: issueKey,
		Provider: uc.generator.Name(),
		Solution: text,
	}, nil
}
