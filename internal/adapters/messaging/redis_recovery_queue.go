package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"parcel-tracking-service/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultRecoveryQueue = "parcel-recovery"

// RedisRecoveryQueue pushes recovery messages as JSON onto a Redis list.
// Consumers pop from the head, so delivery order is enqueue order.
type RedisRecoveryQueue struct {
	rdb *goredis.Client
	key string
}

func NewRedisRecoveryQueue(rdb *goredis.Client, key string) *RedisRecoveryQueue {
	if key == "" {
		key = DefaultRecoveryQueue
	}
	return &RedisRecoveryQueue{rdb: rdb, key: key}
}

func (q *RedisRecoveryQueue) Enqueue(ctx context.Context, msg domain.RecoveryMessage) error {
	if q == nil || q.rdb == nil {
		return fmt.Errorf("enqueue recovery: %w: redis recovery queue not initialized", domain.ErrChannelPublish)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("enqueue recovery %q: encode: %w", msg.ShipmentID, err)
	}
	if err := q.rdb.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue recovery %q: %w: %w", msg.ShipmentID, domain.ErrChannelPublish, err)
	}
	return nil
}
