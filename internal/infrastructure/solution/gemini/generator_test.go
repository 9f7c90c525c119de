package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/httpclient"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := NewGenerator(Config{
		APIKey:   "gem-key",
		Model:    "gemini-test",
		Endpoint: server.URL,
		Timeout:  5 * time.Second,
	}, httpclient.New(httpclient.Options{RetryMax: 1, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond}, nil))
	require.NoError(t, err)
	return g
}

func TestGenerator_Generate(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "gem-key", r.Header.Get("x-goog-api-key"))

		var body generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Contents, 1) {
			assert.Equal(t, "fix unused js", body.Contents[0].Parts[0].Text)
		}
		assert.Equal(t, defaultMaxTokens, body.GenerationConfig.MaxOutputTokens)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"## Root cause\n"},{"text":"split bundles"}]},"finishReason":"STOP"}]}`))
	})

	text, err := g.Generate(context.Background(), port.SolutionRequest{IssueKey: "unused-javascript", Prompt: "fix unused js"})
	require.NoError(t, err)
	assert.Equal(t, "## Root cause\nsplit bundles", text)
	assert.Equal(t, "gemini", g.Name())
}

func TestGenerator_RetriesServerErrors(t *testing.T) {
	calls := 0
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})

	text, err := g.Generate(context.Background(), port.SolutionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, calls)
}

func TestGenerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"message":"API key not valid"}}`, "gemini returned 400"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, "no text"},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, "no text"},
		{"malformed", http.StatusOK, `{`, "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := g.Generate(context.Background(), port.SolutionRequest{Prompt: "p"})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewGenerator_RequiresKey(t *testing.T) {
	_, err := NewGenerator(Config{}, nil)
	assert.Error(t, err)
}
