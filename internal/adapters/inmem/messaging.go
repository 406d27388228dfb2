package inmem

import (
	"context"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"sync"
)

// EventBus records every published batch.
type EventBus struct {
	// Err, when set, fails the whole PublishBatch call.
	Err error

	mu      sync.Mutex
	batches [][]domain.OutboundEvent
}

func (b *EventBus) PublishBatch(_ context.Context, entries []domain.OutboundEvent) (int, error) {
	if b.Err != nil {
		return len(entries), fmt.Errorf("publish batch: %w: %w", domain.ErrChannelPublish, b.Err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	batch := make([]domain.OutboundEvent, len(entries))
	copy(batch, entries)
	b.batches = append(b.batches, batch)
	return 0, nil
}

func (b *EventBus) Batches() [][]domain.OutboundEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]domain.OutboundEvent, len(b.batches))
	copy(out, b.batches)
	return out
}

// RecoveryQueue records enqueued messages in order.
type RecoveryQueue struct {
	Err error

	mu       sync.Mutex
	messages []domain.RecoveryMessage
}

func (q *RecoveryQueue) Enqueue(_ context.Context, msg domain.RecoveryMessage) error {
	if q.Err != nil {
		return fmt.Errorf("enqueue recovery %q: %w", msg.ShipmentID, q.Err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *RecoveryQueue) Messages() []domain.RecoveryMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.RecoveryMessage, len(q.messages))
	copy(out, q.messages)
	return out
}

// AlertPublisher records alert texts in order.
type AlertPublisher struct {
	Err error

	mu     sync.Mutex
	alerts []string
}

var errEmptyAlert = errors.New("alert message is empty")

func (a *AlertPublisher) PublishAlert(_ context.Context, message string) error {
	if message == "" {
		return errEmptyAlert
	}
	if a.Err != nil {
		return fmt.Errorf("publish alert: %w: %w", domain.ErrChannelPublish, a.Err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, message)
	return nil
}

func (a *AlertPublisher) Alerts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.alerts))
	copy(out, a.alerts)
	return out
}
