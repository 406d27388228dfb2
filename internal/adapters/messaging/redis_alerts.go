package messaging

import (
	"context"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultAlertChannel = "parcel-alerts"

// RedisAlertPublisher broadcasts free-text alerts on a pub/sub channel.
type RedisAlertPublisher struct {
	rdb     *goredis.Client
	channel string
}

func NewRedisAlertPublisher(rdb *goredis.Client, channel string) *RedisAlertPublisher {
	if channel == "" {
		channel = DefaultAlertChannel
	}
	return &RedisAlertPublisher{rdb: rdb, channel: channel}
}

func (p *RedisAlertPublisher) PublishAlert(ctx context.Context, message string) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("publish alert: %w: redis alert publisher not initialized", domain.ErrChannelPublish)
	}
	if message == "" {
		return errors.New("publish alert: message is empty")
	}
	if err := p.rdb.Publish(ctx, p.channel, message).Err(); err != nil {
		return fmt.Errorf("publish alert: %w: %w", domain.ErrChannelPublish, err)
	}
	return nil
}
