// Package cloudwatch exports measurement metrics and application logs to AWS CloudWatch.
package cloudwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
)

// buildAWSConfig loads the default chain; static keys and an endpoint
// (LocalStack) override it when set.
func buildAWSConfig(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}

// withBackoff runs call up to maxRetries times, doubling the pause between attempts.
func withBackoff(ctx context.Context, call func() error) error {
	var lastErr error
	pause := initialBackoff
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if lastErr = call(); lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(pause):
			pause *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}
