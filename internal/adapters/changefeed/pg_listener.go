package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/ports"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Notification is the payload the execution_records trigger sends.
type Notification struct {
	Op         string                `json:"op"`
	ShipmentID string                `json:"shipment_id"`
	Origin     domain.MutationOrigin `json:"origin"`
	Version    int64                 `json:"version"`
}

// ParseNotification decodes a trigger payload.
func ParseNotification(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, fmt.Errorf("parse notification: %w", err)
	}
	if strings.TrimSpace(n.ShipmentID) == "" {
		return Notification{}, errors.New("parse notification: missing shipment_id")
	}
	return n, nil
}

// Kind maps the trigger operation onto a change kind.
func (n Notification) Kind() domain.ChangeKind {
	if strings.EqualFold(n.Op, "INSERT") {
		return domain.ChangeInsert
	}
	return domain.ChangeModify
}

// PGListener turns Postgres NOTIFY messages into RecordChange deliveries.
// It holds a dedicated connection outside the database/sql pool because
// LISTEN state is per session.
type PGListener struct {
	DatabaseURL string
	Channel     string
	Records     ports.ExecutionRecordStore
	Handler     ports.ChangeHandler

	// RetryDelay is the pause before reconnecting after a dropped connection.
	RetryDelay time.Duration

	log *logger.Logger
}

func NewPGListener(
	databaseURL string,
	channel string,
	records ports.ExecutionRecordStore,
	handler ports.ChangeHandler,
	log *logger.Logger,
) *PGListener {
	return &PGListener{
		DatabaseURL: databaseURL,
		Channel:     channel,
		Records:     records,
		Handler:     handler,
		RetryDelay:  2 * time.Second,
		log:         log.With("service", "PGListener", "channel", channel),
	}
}

// Run listens until ctx is cancelled, reconnecting on connection loss.
func (l *PGListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("change feed interrupted", "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.RetryDelay):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.DatabaseURL)
	if err != nil {
		return fmt.Errorf("change feed: connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("change feed: listen: %w", err)
	}
	l.log.Info("change feed listening")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("change feed: wait: %w", err)
		}
		if err := l.Deliver(ctx, n.Payload); err != nil {
			l.log.Warn("change not delivered", "payload", n.Payload, "error", err)
		}
	}
}

// Deliver handles one notification payload. Notifications whose version is
// older than the stored record are dropped; a later notification for the
// same record carries the newer state.
func (l *PGListener) Deliver(ctx context.Context, payload string) error {
	n, err := ParseNotification(payload)
	if err != nil {
		return err
	}

	rec, err := l.Records.Get(ctx, n.ShipmentID)
	if err != nil {
		return fmt.Errorf("deliver change %q: %w", n.ShipmentID, err)
	}
	if rec.Version > n.Version {
		l.log.Debug("superseded change skipped", "shipment_id", n.ShipmentID, "version", n.Version, "current", rec.Version)
		return nil
	}

	return l.Handler.HandleChange(ctx, domain.RecordChange{
		Kind:   n.Kind(),
		Origin: n.Origin,
		Record: *rec,
	})
}
