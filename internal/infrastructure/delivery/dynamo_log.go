package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client the log needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoLog stores processed delivery ids in a table keyed on delivery_id.
// expires_at is meant to be the table's TTL attribute.
type DynamoLog struct {
	client    DynamoAPI
	tableName string
	retention time.Duration
	now       func() time.Time
}

type dynamoDelivery struct {
	DeliveryID  string `dynamodbav:"delivery_id"`
	ProcessedAt string `dynamodbav:"processed_at"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
}

func NewDynamoLog(client DynamoAPI, tableName string, retention time.Duration) *DynamoLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &DynamoLog{
		client:    client,
		tableName: tableName,
		retention: retention,
		now:       time.Now,
	}
}

func (l *DynamoLog) Seen(ctx context.Context, deliveryID string) (bool, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"delivery_id": &types.AttributeValueMemberS{Value: deliveryID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to get delivery: %w", err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}

	// TTL deletion lags, so an expired item can still be returned
	var item dynamoDelivery
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return false, fmt.Errorf("failed to unmarshal delivery: %w", err)
	}
	if item.ExpiresAt > 0 && item.ExpiresAt < l.now().Unix() {
		return false, nil
	}
	return true, nil
}

func (l *DynamoLog) MarkProcessed(ctx context.Context, deliveryID string) error {
	now := l.now().UTC()
	av, err := attributevalue.MarshalMap(dynamoDelivery{
		DeliveryID:  deliveryID,
		ProcessedAt: now.Format(time.RFC3339),
		ExpiresAt:   now.Add(l.retention).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(delivery_id)"),
	})
	if err != nil {
		var exists *types.ConditionalCheckFailedException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to put delivery: %w", err)
	}
	return nil
}
