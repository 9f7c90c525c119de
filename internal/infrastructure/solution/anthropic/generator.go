// Package anthropic generates remediation text through the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
)

const (
	providerName     = "anthropic"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 2048
	maxRetries       = 2
)

type Config struct {
	APIKey          string
	Model           string
	Timeout         time.Duration
	MaxOutputTokens int
	// BaseURL overrides the API host (tests).
	BaseURL string
}

// Generator implements port.SolutionGenerator.
type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewGenerator(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(maxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxOutputTokens),
	}, nil
}

func (g *Generator) Name() string {
	return providerName
}

// Generate sends req.Prompt as one user message and joins the text blocks of the answer.
func (g *Generator) Generate(ctx context.Context, req port.SolutionRequest) (string, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", errors.New("anthropic returned no text")
	}
	return text.String(), nil
}
