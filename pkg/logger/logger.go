package logger

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
)

type Logger struct {
	zap       *zap.Logger
	level     zap.AtomicLevel
	publisher atomic.Pointer[publisherHolder]
}

type Level = zapcore.Level

const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
)

type publisherHolder struct {
	publisher port.LogPublisher
}

const publishTimeout = 2 * time.Second

func New(level string) *Logger {
	atomicLevel := zap.NewAtomicLevelAt(parseLevel(level))

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	z, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		z = zap.NewNop()
	}

	return &Logger{zap: z, level: atomicLevel}
}

// NewWithCore builds a Logger on top of an arbitrary zap core. Tests use it with zaptest/observer.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{
		zap:   zap.New(core, zap.AddCallerSkip(2)),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogPublisher mirrors every entry to an external log sink (CloudWatch Logs).
func (l *Logger) SetLogPublisher(publisher port.LogPublisher) {
	if publisher == nil {
		l.publisher.Store(nil)
		return
	}
	l.publisher.Store(&publisherHolder{publisher: publisher})
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(zapcore.DebugLevel, msg, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(zapcore.InfoLevel, msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(zapcore.WarnLevel, msg, args...)
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.log(zapcore.ErrorLevel, msg, args...)
}

// Enabled reports whether entries of the given level are written.
func (l *Logger) Enabled(level Level) bool {
	return l.level.Enabled(level)
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func (l *Logger) log(level zapcore.Level, msg string, args ...interface{}) {
	if !l.level.Enabled(level) {
		return
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(args[i]), args[i+1]))
	}

	if ce := l.zap.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}

	l.publish(level, msg, args...)
}

func (l *Logger) publish(level zapcore.Level, msg string, args ...interface{}) {
	holder := l.publisher.Load()
	if holder == nil {
		return
	}

	entry := port.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     toLogLevel(level),
		Message:   msg,
	}
	if len(args) > 1 {
		entry.Fields = make(map[string]interface{}, len(args)/2)
		for i := 0; i+1 < len(args); i += 2 {
			entry.Fields[fmt.Sprint(args[i])] = args[i+1]
		}
	}

	// Publisher buffers internally; a short timeout keeps a stuck flush from stalling callers.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	_ = holder.publisher.Publish(ctx, entry)
}

func toLogLevel(level zapcore.Level) port.LogLevel {
	switch level {
	case zapcore.DebugLevel:
		return port.LogLevelDebug
	case zapcore.WarnLevel:
		return port.LogLevelWarn
	case zapcore.ErrorLevel:
		return port.LogLevelError
	default:
		return port.LogLevelInfo
	}
}
