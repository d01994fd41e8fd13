package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bleepstore/blobd/internal/config"
	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/storage"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBStore implements Store on a DynamoDB table keyed by "pk". Create
// is a conditional put on attribute_not_exists(pk).
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBStore(ctx context.Context, cfg *config.DynamoDBConfig) (*DynamoDBStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dynamodb config is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}

	return NewDynamoDBStoreWithClient(dynamodb.NewFromConfig(awsCfg), cfg.Table), nil
}

// NewDynamoDBStoreWithClient is used by tests.
func NewDynamoDBStoreWithClient(client DynamoDBAPI, table string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: table}
}

func pkBlob(id string) string {
	return "BLOB#" + id
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

func (s *DynamoDBStore) Close() error {
	return nil
}

func (s *DynamoDBStore) Exists(ctx context.Context, id string) (bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.tableName),
		Key:                  map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pkBlob(id)}},
		ProjectionExpression: aws.String("pk"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("checking blob %q: %w", id, err)
	}
	return resp.Item != nil, nil
}

func (s *DynamoDBStore) Create(ctx context.Context, rec *BlobRecord) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"pk":         &types.AttributeValueMemberS{Value: pkBlob(rec.ID)},
			"id":         &types.AttributeValueMemberS{Value: rec.ID},
			"size":       &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.Size, 10)},
			"backend":    &types.AttributeValueMemberS{Value: string(rec.Backend)},
			"created_at": &types.AttributeValueMemberS{Value: formatTime(rec.CreatedAt)},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("creating blob record %q: %w", rec.ID, err)
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pkBlob(id)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting blob record %q: %w", id, err)
	}
	if resp.Item == nil {
		return nil, fmt.Errorf("%w: %s", blobderr.ErrNotFound, id)
	}

	createdAt, err := parseTime(getString(resp.Item, "created_at"))
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %q: %w", id, err)
	}
	return &BlobRecord{
		ID:        getString(resp.Item, "id"),
		Size:      getNInt(resp.Item, "size"),
		Backend:   storage.Tag(getString(resp.Item, "backend")),
		CreatedAt: createdAt,
	}, nil
}

func getString(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key]; ok {
		if sv, ok := v.(*types.AttributeValueMemberS); ok {
			return sv.Value
		}
	}
	return ""
}

func getNInt(item map[string]types.AttributeValue, key string) int64 {
	if v, ok := item[key]; ok {
		if nv, ok := v.(*types.AttributeValueMemberN); ok {
			n, _ := strconv.ParseInt(nv.Value, 10, 64)
			return n
		}
	}
	return 0
}
