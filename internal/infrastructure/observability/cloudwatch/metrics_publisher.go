package cloudwatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// PutMetricData accepts at most this many datums per call.
const maxMetricsPerRequest = 1000

// Metric names published per measurement.
const (
	MetricPerformanceScore = "PerformanceScore"
	MetricLCP              = "LargestContentfulPaint"
	MetricFCP              = "FirstContentfulPaint"
	MetricTBT              = "TotalBlockingTime"
	MetricCLS              = "CumulativeLayoutShift"
	MetricSpeedIndex       = "SpeedIndex"
	MetricTTI              = "TimeToInteractive"
	MetricProbeFailed      = "ProbeFailed"
)

// timingSpec maps one Lighthouse timing to its CloudWatch metric.
type timingSpec struct {
	name  string
	unit  types.StandardUnit
	value func(valueobject.TimingMetrics) *float64
}

var timingSpecs = []timingSpec{
	{MetricLCP, types.StandardUnitSeconds, func(m valueobject.TimingMetrics) *float64 { return m.LCP }},
	{MetricFCP, types.StandardUnitSeconds, func(m valueobject.TimingMetrics) *float64 { return m.FCP }},
	{MetricSpeedIndex, types.StandardUnitSeconds, func(m valueobject.TimingMetrics) *float64 { return m.SpeedIndex }},
	{MetricTTI, types.StandardUnitSeconds, func(m valueobject.TimingMetrics) *float64 { return m.TTI }},
	{MetricTBT, types.StandardUnitMilliseconds, func(m valueobject.TimingMetrics) *float64 { return m.TBT }},
	{MetricCLS, types.StandardUnitNone, func(m valueobject.TimingMetrics) *float64 { return m.CLS }},
}

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string
	Region            string
	Endpoint          string // LocalStack override
	AccessKeyID       string
	SecretAccessKey   string
	DefaultDimensions map[string]string
	BufferSize        int
	FlushInterval     time.Duration
	StorageResolution int32 // 1 or 60 seconds
}

type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsPublisher implements port.MetricsPublisher.
//
// Every record yields per-target datums (URL and Network dimensions) plus a
// Network-only rollup of the score or failure. CloudWatch does not aggregate
// across dimensions, so the rollup is what fleet-wide alarms watch.
type MetricsPublisher struct {
	client     putMetricDataAPI
	namespace  string
	baseDims   []types.Dimension
	resolution int32
	logger     *logger.Logger

	mu         sync.Mutex
	buffer     []types.MetricDatum
	bufferSize int

	ticker    *time.Ticker
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMetricsPublisher validates cfg and connects to CloudWatch.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig, log *logger.Logger) (*MetricsPublisher, error) {
	switch {
	case cfg.Namespace == "":
		return nil, fmt.Errorf("namespace is required")
	case cfg.Region == "":
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}
	return newMetricsPublisher(cloudwatch.NewFromConfig(awsCfg), cfg, log), nil
}

func newMetricsPublisher(client putMetricDataAPI, cfg MetricsPublisherConfig, log *logger.Logger) *MetricsPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.StorageResolution != 1 {
		cfg.StorageResolution = 60
	}

	p := &MetricsPublisher{
		client:     client,
		namespace:  cfg.Namespace,
		baseDims:   sortedDimensions(cfg.DefaultDimensions),
		resolution: cfg.StorageResolution,
		logger:     log,
		buffer:     make([]types.MetricDatum, 0, cfg.BufferSize),
		bufferSize: cfg.BufferSize,
		ticker:     time.NewTicker(cfg.FlushInterval),
		stop:       make(chan struct{}),
	}

	p.wg.Add(1)
	go p.flushLoop()
	return p
}

// sortedDimensions keeps dimension order stable so identical series stay identical.
func sortedDimensions(dims map[string]string) []types.Dimension {
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]types.Dimension, 0, len(names))
	for _, name := range names {
		out = append(out, types.Dimension{Name: aws.String(name), Value: aws.String(dims[name])})
	}
	return out
}

// PublishMeasurement buffers the datums of one record and flushes a full buffer.
func (p *MetricsPublisher) PublishMeasurement(ctx context.Context, record *entity.MeasurementRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	data := p.convertToData(record)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, data...)
	if len(p.buffer) < p.bufferSize {
		return nil
	}
	if err := p.flushLocked(ctx); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// Flush sends everything buffered so far.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

// Close stops the flush loop and sends what is left. It is safe to call twice.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.ticker.Stop()
		p.wg.Wait()
	})
	return p.Flush(ctx)
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.Flush(ctx); err != nil && p.logger != nil {
				p.logger.Warn("CloudWatch metrics flush failed, keeping buffer", "error", err.Error())
			}
			cancel()
		case <-p.stop:
			return
		}
	}
}

// flushLocked sends the buffer in request-sized chunks. Chunks already accepted
// are removed even when a later one fails.
func (p *MetricsPublisher) flushLocked(ctx context.Context) error {
	for len(p.buffer) > 0 {
		n := min(len(p.buffer), maxMetricsPerRequest)
		chunk := p.buffer[:n]

		err := withBackoff(ctx, func() error {
			_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
				Namespace:  aws.String(p.namespace),
				MetricData: chunk,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
		p.buffer = append(p.buffer[:0], p.buffer[n:]...)
	}
	return nil
}

func (p *MetricsPublisher) convertToData(record *entity.MeasurementRecord) []types.MetricDatum {
	network := types.Dimension{Name: aws.String("Network"), Value: aws.String(record.Network().String())}
	target := append(append([]types.Dimension{}, p.baseDims...),
		types.Dimension{Name: aws.String("URL"), Value: aws.String(record.URL())},
		network,
	)
	rollup := append(append([]types.Dimension{}, p.baseDims...), network)

	at := record.MeasuredAt()
	datum := func(name string, value float64, unit types.StandardUnit, dims []types.Dimension) types.MetricDatum {
		return types.MetricDatum{
			MetricName:        aws.String(name),
			Value:             aws.Float64(value),
			Unit:              unit,
			Timestamp:         aws.Time(at),
			Dimensions:        dims,
			StorageResolution: aws.Int32(p.resolution),
		}
	}

	if record.IsFailed() {
		return []types.MetricDatum{
			datum(MetricProbeFailed, 1, types.StandardUnitCount, target),
			datum(MetricProbeFailed, 1, types.StandardUnitCount, rollup),
		}
	}

	score := float64(record.Score())
	data := []types.MetricDatum{
		datum(MetricPerformanceScore, score, types.StandardUnitNone, target),
		datum(MetricPerformanceScore, score, types.StandardUnitNone, rollup),
	}
	metrics := record.Metrics()
	for _, timing := range timingSpecs {
		if v := timing.value(metrics); v != nil {
			data = append(data, datum(timing.name, *v, timing.unit, target))
		}
	}
	return data
}
