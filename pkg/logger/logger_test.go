package logger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []port.LogEntry
}

func (p *recordingPublisher) Publish(_ context.Context, entry port.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, entries []port.LogEntry) error {
	for _, entry := range entries {
		_ = p.Publish(ctx, entry)
	}
	return nil
}

func (p *recordingPublisher) Flush(context.Context) error { return nil }

func TestLoggerWritesKeyValueFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)

	log.Info("Run finished", "completed", 3, "failed", 1)
	log.Error("Persist failed", errors.New("boom"), "target_id", int64(7))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "Run finished", entries[0].Message)
	assert.Equal(t, int64(3), entries[0].ContextMap()["completed"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, int64(7), entries[1].ContextMap()["target_id"])
}

func TestLoggerDropsOddTrailingKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)

	log.Warn("dangling", "key")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestLoggerMirrorsToPublisher(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)
	publisher := &recordingPublisher{}
	log.SetLogPublisher(publisher)

	log.Warn("Scheduled run skipped", "reason", "in progress")

	require.Len(t, publisher.entries, 1)
	assert.Equal(t, port.LogLevelWarn, publisher.entries[0].Level)
	assert.Equal(t, "in progress", publisher.entries[0].Fields["reason"])

	log.SetLogPublisher(nil)
	log.Info("after detach")
	assert.Len(t, publisher.entries, 1)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewRespectsLevel(t *testing.T) {
	log := New("error")
	assert.False(t, log.Enabled(INFO))
	assert.True(t, log.Enabled(ERROR))
}
