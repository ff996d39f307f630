package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/models"
)

func configFor(backend string) config.StoreConfig {
	return config.StoreConfig{Backend: backend, SweepInterval: time.Hour}
}

// fakeDynamo serves canned items and records the last update.
type fakeDynamo struct {
	items      map[string]map[string]types.AttributeValue
	lastUpdate *dynamodb.UpdateItemInput
	updateErr  error
}

func (f *fakeDynamo) id(key map[string]types.AttributeValue) string {
	return key["batch_id"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[f.id(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[f.id(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdate = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	id := f.id(in.Key)
	if _, ok := f.items[id]; !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func newFakeDynamoStore() (*DynamoStore, *fakeDynamo) {
	f := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	return &DynamoStore{db: f, tableName: "batches"}, f
}

func TestDynamoStorePutGetList(t *testing.T) {
	s, _ := newFakeDynamoStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.PutBatch(ctx, newBatch("a", now)))
	require.NoError(t, s.PutBatch(ctx, newBatch("b", now.Add(time.Second))))
	gone := newBatch("gone", now.Add(-2*time.Hour))
	require.NoError(t, s.PutBatch(ctx, gone))

	b, err := s.GetBatch(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
	require.Len(t, b.Lots, 1)
	assert.True(t, b.Lots[0].TargetAt.Equal(now.Add(time.Minute)))

	_, err = s.GetBatch(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound, "expired items are hidden before TTL deletion")
	_, err = s.GetBatch(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].BatchID)
}

func TestDynamoStoreMarkRunningConditional(t *testing.T) {
	s, f := newFakeDynamoStore()
	ctx := context.Background()

	ok, err := s.MarkRunning(ctx, "a", "worker-1", 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "#st = :pending", *f.lastUpdate.ConditionExpression)
	assert.Equal(t, "running", f.lastUpdate.ExpressionAttributeValues[":running"].(*types.AttributeValueMemberS).Value)

	f.updateErr = &types.ConditionalCheckFailedException{}
	ok, err = s.MarkRunning(ctx, "a", "worker-2", 43)
	require.NoError(t, err)
	assert.False(t, ok)

	f.updateErr = errors.New("throttled")
	_, err = s.MarkRunning(ctx, "a", "worker-2", 44)
	assert.EqualError(t, err, "throttled")
}

func TestDynamoStoreCompleteMarshalsResult(t *testing.T) {
	s, f := newFakeDynamoStore()
	ctx := context.Background()

	res := models.BatchResult{Lots: []models.LotResult{{LotID: 9, Outcome: models.OutcomeLost, Attempts: 5, Failures: 5}}}
	require.NoError(t, s.Complete(ctx, "a", res, 100))

	var got models.BatchResult
	require.NoError(t, attributevalue.Unmarshal(f.lastUpdate.ExpressionAttributeValues[":res"], &got))
	require.Len(t, got.Lots, 1)
	assert.Equal(t, models.OutcomeLost, got.Lots[0].Outcome)
	assert.Equal(t, "result", f.lastUpdate.ExpressionAttributeNames["#res"])
}

func TestDynamoStoreConditionalErrors(t *testing.T) {
	s, f := newFakeDynamoStore()
	ctx := context.Background()
	require.NoError(t, s.PutBatch(ctx, newBatch("done", time.Now())))

	f.updateErr = &types.ConditionalCheckFailedException{}
	assert.ErrorIs(t, s.RequestCancel(ctx, "done", 1), ErrConflict)
	assert.ErrorIs(t, s.RequestCancel(ctx, "unknown", 1), ErrNotFound)

	require.NoError(t, s.Delete(ctx, "done"))
	assert.ErrorIs(t, s.Delete(ctx, "done"), ErrNotFound)
}
