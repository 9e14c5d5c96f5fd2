// Package dynamo persists checkpoints in a DynamoDB table.
//
// The table needs a single string partition key named "PK". Each run key maps to one
// item holding the task identifier and the JSON encoded message history.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aretw0/onestep/pkg/domain"
)

const pkPrefix = "RUN#"

// API is the minimal DynamoDB interface required by Store.
// *dynamodb.Client satisfies it; tests provide a fake.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements ports.CheckpointStore on a DynamoDB table.
type Store struct {
	api       API
	tableName string
}

// New creates a Store for tableName.
func New(api API, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

func runPK(runKey string) string {
	return pkPrefix + runKey
}

func keyOf(runKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: runPK(runKey)},
	}
}

// Save writes the whole state as one item, replacing the previous one.
func (s *Store) Save(ctx context.Context, runKey string, state *domain.State) error {
	if runKey == "" {
		return domain.ErrEmptyRunKey
	}

	messages := state.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("dynamo: Save marshal: %w", err)
	}

	item := keyOf(runKey)
	item["task_id"] = &types.AttributeValueMemberS{Value: state.TaskID}
	item["messages"] = &types.AttributeValueMemberS{Value: string(data)}
	item["updated_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamo: Save: %w", err)
	}
	return nil
}

// Load reads the item for runKey with a consistent read.
func (s *Store) Load(ctx context.Context, runKey string) (*domain.State, error) {
	if runKey == "" {
		return nil, domain.ErrEmptyRunKey
	}

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            keyOf(runKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: Load: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, domain.ErrCheckpointNotFound
	}

	taskID, err := strAttr(out.Item, "task_id")
	if err != nil {
		return nil, fmt.Errorf("dynamo: Load decode: %w", err)
	}
	raw, err := strAttr(out.Item, "messages")
	if err != nil {
		return nil, fmt.Errorf("dynamo: Load decode: %w", err)
	}

	state := &domain.State{TaskID: taskID}
	if err := json.Unmarshal([]byte(raw), &state.Messages); err != nil {
		return nil, fmt.Errorf("dynamo: Load unmarshal messages: %w", err)
	}
	return state, nil
}

// Delete removes the item for runKey.
func (s *Store) Delete(ctx context.Context, runKey string) error {
	if runKey == "" {
		return domain.ErrEmptyRunKey
	}
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       keyOf(runKey),
	})
	if err != nil {
		return fmt.Errorf("dynamo: Delete: %w", err)
	}
	return nil
}

// List scans the table for checkpoint keys, following pagination.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys := []string{}
	var start map[string]types.AttributeValue

	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.tableName),
			ProjectionExpression: aws.String("PK"),
			ExclusiveStartKey:    start,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo: List scan: %w", err)
		}
		for _, item := range out.Items {
			pk, err := strAttr(item, "PK")
			if err != nil {
				return nil, fmt.Errorf("dynamo: List decode: %w", err)
			}
			if key, ok := strings.CutPrefix(pk, pkPrefix); ok {
				keys = append(keys, key)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}

	sort.Strings(keys)
	return keys, nil
}

func strAttr(item map[string]types.AttributeValue, name string) (string, error) {
	av, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", name)
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", name)
	}
	return s.Value, nil
}
