package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRetention = 72 * time.Hour

// RedisLog records processed webhook delivery ids as keys that expire after
// the retention period. The gateway stops retrying long before that.
type RedisLog struct {
	client    redis.UniversalClient
	retention time.Duration
}

func NewRedisLog(client redis.UniversalClient, retention time.Duration) *RedisLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisLog{client: client, retention: retention}
}

func (l *RedisLog) Seen(ctx context.Context, deliveryID string) (bool, error) {
	n, err := l.client.Exists(ctx, deliveryKey(deliveryID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLog) MarkProcessed(ctx context.Context, deliveryID string) error {
	// SETNX keeps the first timestamp when two deliveries race
	if err := l.client.SetNX(ctx, deliveryKey(deliveryID), time.Now().UTC().Format(time.RFC3339), l.retention).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}

func deliveryKey(deliveryID string) string {
	return "webhook:delivery:" + deliveryID
}
