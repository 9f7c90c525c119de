// Package dynamodb keeps finished run summaries in a DynamoDB table.
package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/pagespeed-monitor/internal/application/port"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	// Items carry expires_at; the table's TTL setting removes them after this period.
	historyRetention = 90 * 24 * time.Hour

	// All runs share one partition: a deployment produces at most a few runs per day.
	runsPartition = "RUNS"
)

// Attribute names. PK and SK form the primary key; SK sorts by start time.
const (
	attrPK         = "PK"
	attrSK         = "SK"
	attrRunID      = "run_id"
	attrTrigger    = "trigger"
	attrNetwork    = "network"
	attrOutcome    = "outcome"
	attrTotal      = "total"
	attrCompleted  = "completed"
	attrFailed     = "failed"
	attrTimedOut   = "timed_out"
	attrMessage    = "message"
	attrStartedAt  = "started_at"
	attrFinishedAt = "finished_at"
	attrExpiresAt  = "expires_at"
)

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
}

type api interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// RunHistoryRepository implements port.RunHistoryRepository.
type RunHistoryRepository struct {
	client      api
	table       string
	strongReads bool
	now         func() time.Time
}

func NewRunHistoryRepository(ctx context.Context, cfg Config) (*RunHistoryRepository, error) {
	table := strings.TrimSpace(cfg.TableName)
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	keyID, secret := strings.TrimSpace(cfg.AccessKeyID), strings.TrimSpace(cfg.SecretAccessKey)
	switch {
	case keyID != "" && secret != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(keyID, secret, "")))
	case keyID != "" || secret != "":
		return nil, fmt.Errorf("static dynamodb credentials need both access key id and secret")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return newRunHistoryRepository(client, table, cfg.StrongReads), nil
}

func newRunHistoryRepository(client api, table string, strongReads bool) *RunHistoryRepository {
	return &RunHistoryRepository{client: client, table: table, strongReads: strongReads, now: time.Now}
}

// Put writes one summary; a repeated run_id with the same start time overwrites it.
func (r *RunHistoryRepository) Put(ctx context.Context, summary port.RunSummary) error {
	item, err := r.encode(summary)
	if err != nil {
		return err
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(r.table), Item: item}); err != nil {
		return fmt.Errorf("dynamodb put run %s: %w", summary.RunID, err)
	}
	return nil
}

// ListRecent returns up to limit summaries, newest first.
func (r *RunHistoryRepository) ListRecent(ctx context.Context, limit int) ([]port.RunSummary, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	output, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": attrPK},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: runsPartition},
		},
		Limit:            aws.Int32(int32(limit)),
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(r.strongReads),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb query run history: %w", err)
	}

	summaries := make([]port.RunSummary, 0, len(output.Items))
	for _, item := range output.Items {
		summary, err := decode(item)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (r *RunHistoryRepository) encode(summary port.RunSummary) (map[string]types.AttributeValue, error) {
	runID := strings.TrimSpace(summary.RunID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}

	started := summary.StartedAt.UTC()
	if started.IsZero() {
		started = r.now().UTC()
	}
	finished := summary.FinishedAt.UTC()
	if finished.IsZero() {
		finished = started
	}

	w := itemWriter{}
	w.str(attrPK, runsPartition)
	w.str(attrSK, sortKey(started, runID))
	w.str(attrRunID, runID)
	w.str(attrOutcome, summary.Outcome)
	w.optStr(attrTrigger, strings.TrimSpace(summary.Trigger))
	w.optStr(attrNetwork, strings.TrimSpace(summary.Network))
	w.optStr(attrMessage, strings.TrimSpace(summary.Message))
	w.num(attrTotal, int64(summary.Total))
	w.num(attrCompleted, int64(summary.Completed))
	w.num(attrFailed, int64(summary.Failed))
	w.flag(attrTimedOut, summary.TimedOut)
	w.millis(attrStartedAt, started)
	w.millis(attrFinishedAt, finished)
	// DynamoDB TTL expects epoch seconds
	w.num(attrExpiresAt, finished.Add(historyRetention).Unix())
	return w, nil
}

func decode(item map[string]types.AttributeValue) (port.RunSummary, error) {
	r := itemReader{item: item}
	summary := port.RunSummary{
		RunID:      r.str(attrRunID),
		Trigger:    r.optStr(attrTrigger),
		Network:    r.optStr(attrNetwork),
		Outcome:    r.optStr(attrOutcome),
		Total:      int(r.optNum(attrTotal)),
		Completed:  int(r.optNum(attrCompleted)),
		Failed:     int(r.optNum(attrFailed)),
		TimedOut:   r.flag(attrTimedOut),
		Message:    r.optStr(attrMessage),
		StartedAt:  r.millis(attrStartedAt),
		FinishedAt: r.millis(attrFinishedAt),
	}
	if r.err != nil {
		return port.RunSummary{}, fmt.Errorf("decode run history item: %w", r.err)
	}
	return summary, nil
}

// sortKey is zero-padded so that lexical order equals chronological order.
func sortKey(started time.Time, runID string) string {
	return fmt.Sprintf("TS#%013d#RUN#%s", started.UnixMilli(), runID)
}
