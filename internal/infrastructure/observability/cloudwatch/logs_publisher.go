package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	applicationPort "github.com/dreschagin/pagespeed-monitor/internal/application/port"
)

// PutLogEvents limits.
const (
	maxLogEventsPerRequest = 10000
	maxLogBatchBytes       = 1048576
	maxLogEventSize        = 256000
	// Every event costs its message size plus 26 bytes in the batch quota.
	logEventOverhead = 26
)

const (
	defaultLogsBufferSize    = 50
	defaultLogsFlushInterval = 5 * time.Second
	logsFlushTimeout         = 30 * time.Second
	// Entries above bufferSize*maxBufferedFactor are dropped oldest first while
	// CloudWatch keeps rejecting flushes.
	maxBufferedFactor = 20
)

// correlationKeys are lifted from Fields to the top level of each event so that
// Logs Insights can filter a whole run or a single target without parsing.
var correlationKeys = []string{"run_id", "trigger", "url", "network"}

// LogsPublisherConfig holds configuration for CloudWatch logs publishing.
type LogsPublisherConfig struct {
	LogGroupName    string
	LogStreamName   string
	Region          string
	Endpoint        string // LocalStack override
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int
	FlushInterval   time.Duration
	AutoCreate      bool
	Service         string
}

type logsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// LogsPublisher mirrors application log entries to a CloudWatch log stream.
// It implements port.LogPublisher and is attached through logger.SetLogPublisher.
type LogsPublisher struct {
	client  logsAPI
	group   string
	stream  string
	service string

	mu            sync.Mutex
	buffer        []applicationPort.LogEntry
	bufferSize    int
	maxBuffered   int
	dropped       int
	sequenceToken *string

	ticker    *time.Ticker
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLogsPublisher validates cfg and connects to CloudWatch Logs.
func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	switch {
	case cfg.LogGroupName == "":
		return nil, fmt.Errorf("log group name is required")
	case cfg.LogStreamName == "":
		return nil, fmt.Errorf("log stream name is required")
	case cfg.Region == "":
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	return newLogsPublisher(ctx, cloudwatchlogs.NewFromConfig(awsCfg), cfg)
}

func newLogsPublisher(ctx context.Context, client logsAPI, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultLogsBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultLogsFlushInterval
	}

	p := &LogsPublisher{
		client:      client,
		group:       cfg.LogGroupName,
		stream:      cfg.LogStreamName,
		service:     cfg.Service,
		buffer:      make([]applicationPort.LogEntry, 0, cfg.BufferSize),
		bufferSize:  cfg.BufferSize,
		maxBuffered: cfg.BufferSize * maxBufferedFactor,
		stop:        make(chan struct{}),
	}

	if cfg.AutoCreate {
		if err := p.ensureDestination(ctx); err != nil {
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.ticker = time.NewTicker(cfg.FlushInterval)
	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// Publish buffers one entry and flushes when the buffer is full.
func (p *LogsPublisher) Publish(ctx context.Context, entry applicationPort.LogEntry) error {
	return p.PublishBatch(ctx, []applicationPort.LogEntry{entry})
}

// PublishBatch buffers entries and flushes every time the buffer fills up.
func (p *LogsPublisher) PublishBatch(ctx context.Context, entries []applicationPort.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range entries {
		p.appendLocked(entry)
		if len(p.buffer) >= p.bufferSize {
			if err := p.flushLocked(ctx); err != nil {
				return fmt.Errorf("failed to flush buffer: %w", err)
			}
		}
	}
	return nil
}

// Flush sends everything buffered so far.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

// Close stops the flush loop and sends what is left. It is safe to call twice.
func (p *LogsPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.ticker.Stop()
		p.wg.Wait()
	})
	return p.Flush(ctx)
}

// Dropped reports how many entries were discarded because the buffer overflowed.
func (p *LogsPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *LogsPublisher) appendLocked(entry applicationPort.LogEntry) {
	if len(p.buffer) >= p.maxBuffered {
		p.buffer = p.buffer[1:]
		p.dropped++
	}
	p.buffer = append(p.buffer, entry)
}

func (p *LogsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), logsFlushTimeout)
			// Not logged: the application logger is what feeds this publisher.
			// A failed flush keeps the buffer for the next tick.
			_ = p.Flush(ctx)
			cancel()
		case <-p.stop:
			return
		}
	}
}

func (p *LogsPublisher) flushLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	// PutLogEvents rejects batches that are not in chronological order.
	sort.SliceStable(p.buffer, func(i, j int) bool {
		return p.buffer[i].Timestamp.Before(p.buffer[j].Timestamp)
	})

	events := make([]types.InputLogEvent, 0, len(p.buffer))
	for _, entry := range p.buffer {
		event, err := p.convertToLogEvent(entry)
		if err != nil {
			continue
		}
		events = append(events, event)
	}

	for _, batch := range splitLogBatches(events) {
		if err := p.put(ctx, batch); err != nil {
			return err
		}
	}

	p.buffer = p.buffer[:0]
	return nil
}

// splitLogBatches keeps every batch within the event count and byte quotas.
func splitLogBatches(events []types.InputLogEvent) [][]types.InputLogEvent {
	var (
		batches [][]types.InputLogEvent
		start   int
		size    int
	)
	for i, event := range events {
		cost := len(aws.ToString(event.Message)) + logEventOverhead
		if i > start && (i-start >= maxLogEventsPerRequest || size+cost > maxLogBatchBytes) {
			batches = append(batches, events[start:i])
			start, size = i, 0
		}
		size += cost
	}
	if start < len(events) {
		batches = append(batches, events[start:])
	}
	return batches
}

func (p *LogsPublisher) put(ctx context.Context, events []types.InputLogEvent) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		output, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(p.group),
			LogStreamName: aws.String(p.stream),
			LogEvents:     events,
			SequenceToken: p.sequenceToken,
		})
		if err == nil {
			p.sequenceToken = output.NextSequenceToken
			return nil
		}

		var invalidSeq *types.InvalidSequenceTokenException
		if errors.As(err, &invalidSeq) {
			p.sequenceToken = invalidSeq.ExpectedSequenceToken
			continue
		}
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("put log events failed after %d attempts: %w", maxRetries, lastErr)
}

// convertToLogEvent renders one entry as a JSON event. Correlation keys found in
// Fields move to the top level; the rest stay under "fields".
func (p *LogsPublisher) convertToLogEvent(entry applicationPort.LogEntry) (types.InputLogEvent, error) {
	payload := map[string]interface{}{
		"timestamp": entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"level":     string(entry.Level),
		"message":   entry.Message,
	}
	if p.service != "" {
		payload["service"] = p.service
	}

	if len(entry.Fields) > 0 {
		rest := make(map[string]interface{}, len(entry.Fields))
		for key, value := range entry.Fields {
			rest[key] = value
		}
		for _, key := range correlationKeys {
			if value, ok := rest[key]; ok {
				payload[key] = value
				delete(rest, key)
			}
		}
		if len(rest) > 0 {
			payload["fields"] = rest
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(raw)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
	}, nil
}

// ensureDestination creates the log group and stream, tolerating existing ones.
func (p *LogsPublisher) ensureDestination(ctx context.Context) error {
	var alreadyExists *types.ResourceAlreadyExistsException

	if _, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.group),
	}); err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log group: %w", err)
	}

	if _, err := p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.group),
		LogStreamName: aws.String(p.stream),
	}); err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log stream: %w", err)
	}

	return nil
}
