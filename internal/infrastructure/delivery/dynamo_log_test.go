package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo honours the attribute_not_exists condition on delivery_id.
type fakeDynamo struct {
	items  map[string]map[string]types.AttributeValue
	puts   []*dynamodb.PutItemInput
	getErr error
	putErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	key := in.Key["delivery_id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	key := in.Item["delivery_id"].(*types.AttributeValueMemberS).Value
	if _, ok := f.items[key]; ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoLog_MarkThenSeen(t *testing.T) {
	db := newFakeDynamo()
	log := NewDynamoLog(db, "webhook-deliveries", time.Hour)
	ctx := context.Background()

	seen, err := log.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, log.MarkProcessed(ctx, "msg_1"))

	seen, err = log.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.Len(t, db.puts, 1)
	put := db.puts[0]
	assert.Equal(t, "webhook-deliveries", aws.ToString(put.TableName))
	assert.Equal(t, "attribute_not_exists(delivery_id)", aws.ToString(put.ConditionExpression))
	assert.Contains(t, put.Item, "expires_at")
	assert.Contains(t, put.Item, "processed_at")
}

func TestDynamoLog_MarkTwiceIsNotAnError(t *testing.T) {
	db := newFakeDynamo()
	log := NewDynamoLog(db, "webhook-deliveries", time.Hour)

	require.NoError(t, log.MarkProcessed(context.Background(), "msg_1"))
	assert.NoError(t, log.MarkProcessed(context.Background(), "msg_1"))
}

func TestDynamoLog_ExpiredItemIsNotSeen(t *testing.T) {
	db := newFakeDynamo()
	log := NewDynamoLog(db, "webhook-deliveries", time.Hour)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return start }

	require.NoError(t, log.MarkProcessed(context.Background(), "msg_1"))

	log.now = func() time.Time { return start.Add(2 * time.Hour) }
	seen, err := log.Seen(context.Background(), "msg_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDynamoLog_Errors(t *testing.T) {
	db := newFakeDynamo()
	db.getErr = errors.New("throttled")
	db.putErr = errors.New("throttled")
	log := NewDynamoLog(db, "webhook-deliveries", 0)

	_, err := log.Seen(context.Background(), "msg_1")
	assert.ErrorContains(t, err, "throttled")
	assert.ErrorContains(t, log.MarkProcessed(context.Background(), "msg_1"), "throttled")
	assert.Equal(t, DefaultRetention, log.retention)
}
