package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/models"
)

// dynamoAPI is the subset of the DynamoDB client the store calls.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps batches in a table keyed by batch_id with TTL enabled on
// expires_at.
type DynamoStore struct {
	db        dynamoAPI
	tableName string
}

func NewDynamoStore(ctx context.Context, cfg config.StoreConfig) (*DynamoStore, error) {
	region := cfg.AWSRegion
	if region == "" {
		region = "eu-west-3"
	}
	if cfg.DynamoTable == "" {
		return nil, fmt.Errorf("DYNAMO_TABLE is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	})

	return &DynamoStore{db: client, tableName: cfg.DynamoTable}, nil
}

func (s *DynamoStore) key(batchID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"batch_id": &types.AttributeValueMemberS{Value: batchID},
	}
}

func (s *DynamoStore) PutBatch(ctx context.Context, b models.Batch) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return err
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

func (s *DynamoStore) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(batchID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var b models.Batch
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, err
	}
	// TTL deletion is lazy on DynamoDB's side.
	if expired(b, nowMs()) {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *DynamoStore) ListBatches(ctx context.Context, limit int) ([]models.Batch, error) {
	p := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})

	now := nowMs()
	var batches []models.Batch
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []models.Batch
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		for _, b := range page {
			if !expired(b, now) {
				batches = append(batches, b)
			}
		}
	}

	sortNewestFirst(batches)
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

func (s *DynamoStore) MarkRunning(ctx context.Context, batchID, workerID string, nowMs int64) (bool, error) {
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(batchID),

		// Only claim if it's still pending
		ConditionExpression: aws.String("#st = :pending"),

		UpdateExpression: aws.String("SET #st = :running, worker_id = :wid, started_at = :sa, updated_at = :u"),

		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(models.StatusPending)},
			":running": &types.AttributeValueMemberS{Value: string(models.StatusRunning)},
			":wid":     &types.AttributeValueMemberS{Value: workerID},
			":sa":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", nowMs)},
			":u":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", nowMs)},
		},
	})

	if err != nil {
		// Someone else claimed it, or it is gone
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *DynamoStore) Complete(ctx context.Context, batchID string, result models.BatchResult, nowMs int64) error {
	res, err := attributevalue.Marshal(result)
	if err != nil {
		return err
	}

	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(batchID),
		ConditionExpression: aws.String("attribute_exists(batch_id) AND NOT (#st IN (:completed, :error))"),
		UpdateExpression:    aws.String("SET #st = :completed, #res = :res, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#st":  "status",
			"#res": "result",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": &types.AttributeValueMemberS{Value: string(models.StatusCompleted)},
			":error":     &types.AttributeValueMemberS{Value: string(models.StatusError)},
			":res":       res,
			":u":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", nowMs)},
		},
	})
	return s.conditional(ctx, batchID, err)
}

func (s *DynamoStore) Fail(ctx context.Context, batchID, msg string, nowMs int64) error {
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(batchID),
		ConditionExpression: aws.String("attribute_exists(batch_id) AND NOT (#st IN (:completed, :error))"),
		UpdateExpression:    aws.String("SET #st = :error, #err = :msg, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#st":  "status",
			"#err": "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": &types.AttributeValueMemberS{Value: string(models.StatusCompleted)},
			":error":     &types.AttributeValueMemberS{Value: string(models.StatusError)},
			":msg":       &types.AttributeValueMemberS{Value: msg},
			":u":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", nowMs)},
		},
	})
	return s.conditional(ctx, batchID, err)
}

func (s *DynamoStore) RequestCancel(ctx context.Context, batchID string, nowMs int64) error {
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(batchID),
		ConditionExpression: aws.String("#st = :pending OR #st = :running"),
		UpdateExpression:    aws.String("SET cancel_requested = :t, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(models.StatusPending)},
			":running": &types.AttributeValueMemberS{Value: string(models.StatusRunning)},
			":t":       &types.AttributeValueMemberBOOL{Value: true},
			":u":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", nowMs)},
		},
	})
	return s.conditional(ctx, batchID, err)
}

func (s *DynamoStore) Delete(ctx context.Context, batchID string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(batchID),
		ConditionExpression: aws.String("attribute_exists(batch_id)"),
	})
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return ErrNotFound
	}
	return err
}

func (s *DynamoStore) Close() error { return nil }

// conditional maps a failed condition to ErrNotFound or ErrConflict.
func (s *DynamoStore) conditional(ctx context.Context, batchID string, err error) error {
	var cfe *types.ConditionalCheckFailedException
	if !errors.As(err, &cfe) {
		return err
	}
	if _, getErr := s.GetBatch(ctx, batchID); errors.Is(getErr, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConflict
}
