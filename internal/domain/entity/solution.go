package entity

import (
	"errors"
	"strings"
	"time"
)

// Solution хранит сгенерированное решение для одного предложения по улучшению
type Solution struct {
	issueKey  string
	text      string
	updatedAt time.Time
}

// NewSolution создает решение с текущим временем
func NewSolution(issueKey, text string) (*Solution, error) {
	issueKey = strings.TrimSpace(issueKey)
	if issueKey == "" {
		return nil, errors.New("issue key is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("solution text is empty")
	}

	return &Solution{
		issueKey:  issueKey,
		text:      text,
		updatedAt: time.Now().UTC(),
	}, nil
}

// ReconstructSolution восстанавливает решение из хранилища (для Repository)
func ReconstructSolution(issueKey, text string, updatedAt time.Time) *Solution {
	return &Solution{
		issueKey:  issueKey,
		text:      text,
		updatedAt: updatedAt.UTC(),
	}
}

func (s *Solution) IssueKey() string     { return s.issueKey }
func (s *Solution) Text() string         { return s.text }
func (s *Solution) UpdatedAt() time.Time { return s.updatedAt }
