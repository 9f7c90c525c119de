package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	pagespeedonline "google.golang.org/api/pagespeedonline/v5"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/entity"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/service"
	"github.com/dreschagin/pagespeed-monitor/internal/domain/valueobject"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

const (
	// DefaultTimeout bounds a single provider call. Heavy pages on a cold cache take minutes.
	DefaultTimeout = 150 * time.Second

	categoryPerformance = "performance"
)

// Lighthouse audit ids of the timing metrics.
const (
	auditFCP        = "first-contentful-paint"
	auditLCP        = "largest-contentful-paint"
	auditTBT        = "total-blocking-time"
	auditCLS        = "cumulative-layout-shift"
	auditSpeedIndex = "speed-index"
	auditTTI        = "interactive"

	displayModeError         = "error"
	displayModeNotApplicable = "notApplicable"
)

var errMissingAPIKey = errors.New("missing api key")

// errMalformed marks a response that decoded but lacks required fields.
type errMalformed struct{ reason string }

func (e *errMalformed) Error() string { return e.reason }

// Config configures the PageSpeed Insights prober.
type Config struct {
	APIKey  string
	Timeout time.Duration
	// Endpoint overrides the API base URL (tests, proxies).
	Endpoint   string
	HTTPClient *http.Client
}

// Prober implements port.Prober on top of the PageSpeed Insights v5 API.
type Prober struct {
	service     *pagespeedonline.Service
	diagnostics *service.Diagnostics
	apiKey      string
	timeout     time.Duration
	logger      *logger.Logger
}

// NewProber creates a prober. A missing API key is not an error here: every probe then
// yields a Failed record so the run still accounts for each target.
func NewProber(ctx context.Context, cfg Config, log *logger.Logger) (*Prober, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIKey == "" {
		opts = []option.ClientOption{option.WithoutAuthentication()}
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(cfg.Endpoint, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	svc, err := pagespeedonline.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pagespeed service: %w", err)
	}

	return &Prober{
		service:     svc,
		diagnostics: service.NewDiagnostics(),
		apiKey:      cfg.APIKey,
		timeout:     cfg.Timeout,
		logger:      log,
	}, nil
}

// Probe measures one url. It never returns an error: failures become Failed records.
func (p *Prober) Probe(ctx context.Context, url string, network valueobject.NetworkProfile) port.ProbeResult {
	if p.apiKey == "" {
		return failure(url, network, errMissingAPIKey)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	resp, err := p.service.Pagespeedapi.Runpagespeed(url).
		Strategy(network.Strategy()).
		Category(categoryPerformance).
		Context(callCtx).
		Do()
	if err != nil {
		p.logger.Debug("PageSpeed call failed", "url", url, "elapsed", time.Since(started).String())
		return failure(url, network, err)
	}

	record, err := p.normalize(url, network, resp)
	if err != nil {
		return failure(url, network, err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		p.logger.Warn("Failed to encode raw report", "url", url, "error", err.Error())
		raw = nil
	}

	return port.ProbeResult{Record: record, RawReport: raw}
}

func (p *Prober) normalize(
	url string,
	network valueobject.NetworkProfile,
	resp *pagespeedonline.PagespeedApiPagespeedResponseV5,
) (*entity.MeasurementRecord, error) {
	lighthouse := resp.LighthouseResult
	if lighthouse == nil {
		return nil, &errMalformed{reason: "lighthouseResult is missing"}
	}
	if lighthouse.RuntimeError != nil && lighthouse.RuntimeError.Code != "" && lighthouse.RuntimeError.Code != "NO_ERROR" {
		return nil, fmt.Errorf("lighthouse runtime error %s: %s", lighthouse.RuntimeError.Code, lighthouse.RuntimeError.Message)
	}
	if lighthouse.Categories == nil || lighthouse.Categories.Performance == nil {
		return nil, &errMalformed{reason: "performance category is missing"}
	}

	score, ok := toFloat(lighthouse.Categories.Performance.Score)
	if !ok {
		return nil, &errMalformed{reason: "performance score is missing"}
	}

	metrics := valueobject.TimingMetrics{
		FCP:        auditValue(lighthouse.Audits, auditFCP, 1000),
		LCP:        auditValue(lighthouse.Audits, auditLCP, 1000),
		TBT:        auditValue(lighthouse.Audits, auditTBT, 1),
		CLS:        auditValue(lighthouse.Audits, auditCLS, 1),
		SpeedIndex: auditValue(lighthouse.Audits, auditSpeedIndex, 1000),
		TTI:        auditValue(lighthouse.Audits, auditTTI, 1000),
	}

	audits := make(map[string]valueobject.AuditResult, len(lighthouse.Audits))
	for id, audit := range lighthouse.Audits {
		result := valueobject.AuditResult{ID: id, NumericValue: audit.NumericValue}
		if s, ok := toFloat(audit.Score); ok {
			result.Score = &s
		}
		audits[id] = result
	}

	return entity.NewSuccessRecord(
		url,
		network,
		int(math.Round(score*100)),
		metrics,
		p.diagnostics.DeriveFindings(metrics),
		p.diagnostics.SelectOpportunities(audits),
	), nil
}

// auditValue returns nil for an absent metric, and for one Lighthouse could not
// compute: such audits carry a null score and no numericValue.
func auditValue(audits map[string]pagespeedonline.LighthouseAuditResultV5, id string, divisor float64) *float64 {
	audit, ok := audits[id]
	if !ok {
		return nil
	}
	if audit.Score == nil {
		switch audit.ScoreDisplayMode {
		case displayModeError, displayModeNotApplicable:
			return nil
		}
	}
	return valueobject.Float(audit.NumericValue / divisor)
}

// toFloat handles the untyped score fields of the generated client (float64, json.Number or null).
func toFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	case int:
		return float64(value), true
	default:
		return 0, false
	}
}

func failure(url string, network valueobject.NetworkProfile, err error) port.ProbeResult {
	return port.ProbeResult{Record: entity.NewFailureRecord(url, network, ClassifyError(err))}
}

// ClassifyError renders an error as "<class>: <detail>".
// Classes: timeout, http <status>, host not found, missing api key, malformed payload, unknown.
func ClassifyError(err error) string {
	if err == nil {
		return "unknown"
	}

	var (
		apiErr    *googleapi.Error
		dnsErr    *net.DNSError
		netErr    net.Error
		malformed *errMalformed
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.Is(err, errMissingAPIKey):
		return "missing api key"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timeout: %v", err)
	case errors.As(err, &apiErr):
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.Code)
		}
		return fmt.Sprintf("http %d: %s", apiErr.Code, message)
	case errors.As(err, &dnsErr):
		return fmt.Sprintf("host not found: %s", dnsErr.Name)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("timeout: %v", err)
	case errors.As(err, &malformed), errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Sprintf("malformed payload: %v", err)
	default:
		return fmt.Sprintf("unknown: %v", err)
	}
}
