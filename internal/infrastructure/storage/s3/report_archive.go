// Package s3 archives raw Lighthouse reports in an S3-compatible bucket.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// URLMode selects how report links are handed out.
type URLMode string

const (
	URLModePresigned URLMode = "presigned"
	URLModePublic    URLMode = "public"
)

const (
	defaultRegion       = "ru-central1"
	defaultEndpoint     = "https://storage.yandexcloud.net"
	defaultPresignedTTL = 24 * time.Hour

	reportContentType = "application/json"
	// Reports are written once and never rewritten under the same key.
	reportCacheControl = "public, max-age=31536000, immutable"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	URLMode         URLMode
	PresignedTTL    time.Duration
	// Compress stores reports gzip-encoded; Lighthouse JSON shrinks about tenfold.
	Compress bool
}

func (c Config) normalize() (Config, error) {
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.Region = strings.TrimSpace(c.Region)
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")

	if c.Bucket == "" {
		return c, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" || strings.TrimSpace(c.SecretAccessKey) == "" {
		return c, fmt.Errorf("s3 access key id and secret are required")
	}
	switch c.URLMode {
	case "":
		c.URLMode = URLModePresigned
	case URLModePresigned, URLModePublic:
	default:
		return c, fmt.Errorf("unsupported s3 url mode: %s", c.URLMode)
	}
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.PresignedTTL <= 0 {
		c.PresignedTTL = defaultPresignedTTL
	}
	return c, nil
}

// ReportArchive implements port.ReportArchive.
type ReportArchive struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     Config

	// kept apart from cfg so publicURL works on a bare struct
	bucket       string
	endpoint     string
	usePathStyle bool
	urlMode      URLMode
}

func NewReportArchive(ctx context.Context, cfg Config) (*ReportArchive, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &ReportArchive{
		client:       client,
		presign:      s3.NewPresignClient(client),
		cfg:          cfg,
		bucket:       cfg.Bucket,
		endpoint:     cfg.Endpoint,
		usePathStyle: cfg.UsePathStyle,
		urlMode:      cfg.URLMode,
	}, nil
}

// PutReport uploads one raw report and returns a URL to read it back.
func (a *ReportArchive) PutReport(ctx context.Context, key string, body []byte) (string, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(a.bucket),
		Key:          aws.String(key),
		ContentType:  aws.String(reportContentType),
		CacheControl: aws.String(reportCacheControl),
	}

	payload := body
	if a.cfg.Compress {
		compressed, err := gzipBytes(body)
		if err != nil {
			return "", fmt.Errorf("compress report: %w", err)
		}
		payload = compressed
		input.ContentEncoding = aws.String("gzip")
	}
	input.Body = bytes.NewReader(payload)
	input.ContentLength = aws.Int64(int64(len(payload)))

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return a.ReportURL(ctx, key)
}

// ReportURL returns a readable URL for an archived report.
func (a *ReportArchive) ReportURL(ctx context.Context, key string) (string, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	if a.urlMode == URLModePublic {
		return a.publicURL(key), nil
	}

	signed, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.cfg.PresignedTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return signed.URL, nil
}

func (a *ReportArchive) publicURL(key string) string {
	path := strings.ReplaceAll(url.PathEscape(key), "%2F", "/")
	if a.usePathStyle {
		return a.endpoint + "/" + a.bucket + "/" + path
	}

	host := a.endpoint
	for _, scheme := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, scheme)
	}
	return "https://" + a.bucket + "." + host + "/" + path
}

func normalizeKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), "/")
}

func gzipBytes(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
