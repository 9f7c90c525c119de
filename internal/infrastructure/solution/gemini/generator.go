// Package gemini generates remediation text through the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
)

const (
	providerName     = "gemini"
	defaultEndpoint  = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel     = "gemini-3-flash-preview"
	defaultMaxTokens = 2048
	temperature      = 0.7
	maxErrorBody     = 4 << 10
)

var errEmptyAnswer = errors.New("gemini returned no text")

type Config struct {
	APIKey          string
	Model           string
	Endpoint        string
	Timeout         time.Duration
	MaxOutputTokens int
}

// Generator implements port.SolutionGenerator.
type Generator struct {
	http      *retryablehttp.Client
	apiKey    string
	model     string
	endpoint  string
	timeout   time.Duration
	maxTokens int
}

func NewGenerator(cfg Config, httpClient *retryablehttp.Client) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxTokens
	}

	return &Generator{
		http:      httpClient,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxOutputTokens,
	}, nil
}

func (g *Generator) Name() string {
	return providerName
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Generate sends req.Prompt as one user turn and returns the first candidate text.
func (g *Generator) Generate(ctx context.Context, req port.SolutionRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{Temperature: temperature, MaxOutputTokens: g.maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}

	if len(decoded.Candidates) == 0 {
		return "", errEmptyAnswer
	}
	var text strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", errEmptyAnswer
	}
	return text.String(), nil
}
