package ports

import (
	"context"
	"parcel-tracking-service/internal/domain"
)

// Broadcast channel for accepted phase events.
type EventBus interface {
	// Publish all entries in one batched call. Returns how many entries were
	// rejected; a non-nil error means the call as a whole failed.
	PublishBatch(ctx context.Context, entries []domain.OutboundEvent) (int, error)
}

type RecoveryQueue interface {
	Enqueue(ctx context.Context, msg domain.RecoveryMessage) error
}

// Free-text alert channel.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, message string) error
}
