// Package dynamodb implements the checkpoint.Checkpointer contract on
// Amazon DynamoDB, for serverless deployments that want managed
// persistence without running a database, adapted from the original SDK's
// agents-aws DynamoDbCheckpointer.
//
// The table schema is a single "thread_id" (String) hash key plus a
// "state" (String, JSON), "updated_at" (String, RFC3339) and optional
// "ttl" (Number, epoch seconds) attribute:
//
//	aws dynamodb create-table \
//	  --table-name agent-checkpoints \
//	  --attribute-definitions AttributeName=thread_id,AttributeType=S \
//	  --key-schema AttributeName=thread_id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/deepagent-run/deepagent/internal/checkpoint"
	"github.com/deepagent-run/deepagent/internal/state"
)

// Config configures a Store.
type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// TTL, when positive, is stamped onto each saved item as an epoch
	// second so DynamoDB's native TTL sweep reclaims it.
	TTL time.Duration
}

// DefaultConfig returns a Config targeting "agent-checkpoints" in
// us-east-1 with no TTL.
func DefaultConfig() Config {
	return Config{TableName: "agent-checkpoints", Region: "us-east-1"}
}

// Store is a DynamoDB-backed checkpointer.
type Store struct {
	client *dynamodb.Client
	table  string
	ttl    time.Duration
	log    *slog.Logger
}

// Open resolves AWS config (static credentials if given, the default
// chain otherwise) and returns a ready Store. It does not verify the
// table exists; a missing table surfaces as an error on first use.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table := strings.TrimSpace(cfg.TableName)
	if table == "" {
		return nil, fmt.Errorf("dynamodb: table name is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	})

	return &Store{client: client, table: table, ttl: cfg.TTL, log: logger.With("component", "checkpoint.dynamodb")}, nil
}

var _ checkpoint.Checkpointer = (*Store)(nil)

func (s *Store) calculateTTL() (int64, bool) {
	if s.ttl <= 0 {
		return 0, false
	}
	return time.Now().Add(s.ttl).Unix(), true
}

func (s *Store) Save(ctx context.Context, id checkpoint.ThreadID, st *state.AgentState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("dynamodb: marshal state: %w", err)
	}

	item := map[string]types.AttributeValue{
		"thread_id":  &types.AttributeValueMemberS{Value: string(id)},
		"state":      &types.AttributeValueMemberS{Value: string(payload)},
		"updated_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
	}
	if ttl, ok := s.calculateTTL(); ok {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb: save %q: %w", id, err)
	}
	s.log.Debug("saved agent state to dynamodb", "thread_id", id, "table", s.table)
	return nil
}

func (s *Store) Load(ctx context.Context, id checkpoint.ThreadID) (*state.AgentState, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"thread_id": &types.AttributeValueMemberS{Value: string(id)},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb: load %q: %w", id, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}

	attr, ok := out.Item["state"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, false, fmt.Errorf("dynamodb: load %q: state attribute missing or not a string", id)
	}

	var st state.AgentState
	if err := json.Unmarshal([]byte(attr.Value), &st); err != nil {
		return nil, false, fmt.Errorf("dynamodb: unmarshal state: %w", err)
	}
	return &st, true, nil
}

func (s *Store) Delete(ctx context.Context, id checkpoint.ThreadID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"thread_id": &types.AttributeValueMemberS{Value: string(id)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: delete %q: %w", id, err)
	}
	return nil
}

// ListThreads scans the full table, paginating through
// LastEvaluatedKey, since DynamoDB has no secondary index over thread_id
// to query against.
func (s *Store) ListThreads(ctx context.Context) ([]checkpoint.ThreadID, error) {
	var out []checkpoint.ThreadID
	var startKey map[string]types.AttributeValue

	for {
		scanOut, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            &s.table,
			ProjectionExpression: awsStringPtr("thread_id"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb: list threads: %w", err)
		}
		for _, item := range scanOut.Items {
			if attr, ok := item["thread_id"].(*types.AttributeValueMemberS); ok {
				out = append(out, checkpoint.ThreadID(attr.Value))
			}
		}
		if scanOut.LastEvaluatedKey == nil {
			break
		}
		startKey = scanOut.LastEvaluatedKey
	}
	return out, nil
}

func awsStringPtr(s string) *string { return &s }
