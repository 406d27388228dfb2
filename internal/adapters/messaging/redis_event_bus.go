package messaging

import (
	"context"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultEventStream = "parcel-events"

// RedisEventBus appends accepted events to a Redis stream. A batch is sent as
// one pipeline, so a single round trip carries every entry.
type RedisEventBus struct {
	rdb    *goredis.Client
	stream string
	log    *logger.Logger
}

func NewRedisEventBus(rdb *goredis.Client, stream string, log *logger.Logger) *RedisEventBus {
	if stream == "" {
		stream = DefaultEventStream
	}
	return &RedisEventBus{
		rdb:    rdb,
		stream: stream,
		log:    log.With("service", "RedisEventBus", "stream", stream),
	}
}

// PublishBatch returns the number of entries Redis rejected. Server replies
// count per entry; transport failures fail the whole call.
func (b *RedisEventBus) PublishBatch(ctx context.Context, entries []domain.OutboundEvent) (int, error) {
	if b == nil || b.rdb == nil {
		return len(entries), fmt.Errorf("publish batch: %w: redis event bus not initialized", domain.ErrChannelPublish)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	pipe := b.rdb.Pipeline()
	cmds := make([]*goredis.StringCmd, 0, len(entries))
	for _, e := range entries {
		cmds = append(cmds, pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: b.stream,
			Values: map[string]any{
				"id":      e.ID,
				"source":  e.Source,
				"type":    e.Type,
				"payload": string(e.Payload),
			},
		}))
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		var replyErr goredis.Error
		if !errors.As(err, &replyErr) {
			return len(entries), fmt.Errorf("publish batch: %w: %w", domain.ErrChannelPublish, err)
		}
	}

	failed := 0
	for i, cmd := range cmds {
		if cmd.Err() != nil {
			failed++
			b.log.Warn("stream entry rejected", "event_id", entries[i].ID, "error", cmd.Err())
		}
	}
	return failed, nil
}
