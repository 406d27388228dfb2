package messaging

import (
	"context"
	"encoding/json"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func TestNewRedisClient_RequiresAddr(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "  ")
	require.Error(t, err)
}

func TestRedisEventBus_PublishBatchAppendsInOrder(t *testing.T) {
	_, rdb := newTestRedis(t)
	bus := NewRedisEventBus(rdb, "", logger.Nop())
	ctx := context.Background()

	entries := []domain.OutboundEvent{
		{ID: "evt-1", Source: "event.management", Type: "SHIPMENT_CREATED", Payload: json.RawMessage(`{"a":1}`)},
		{ID: "evt-2", Source: "event.management", Type: "PHASE_UPDATE", Payload: json.RawMessage(`{"b":2}`)},
	}

	failed, err := bus.PublishBatch(ctx, entries)
	require.NoError(t, err)
	assert.Zero(t, failed)

	msgs, err := rdb.XRange(ctx, DefaultEventStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "evt-1", msgs[0].Values["id"])
	assert.Equal(t, "PHASE_UPDATE", msgs[1].Values["type"])
	assert.Equal(t, `{"b":2}`, msgs[1].Values["payload"])
}

func TestRedisEventBus_EmptyBatchIsNoop(t *testing.T) {
	_, rdb := newTestRedis(t)
	bus := NewRedisEventBus(rdb, "s", logger.Nop())

	failed, err := bus.PublishBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, failed)
}

func TestRedisEventBus_TransportFailureFailsWholeBatch(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bus := NewRedisEventBus(rdb, "s", logger.Nop())
	mr.Close()

	entries := []domain.OutboundEvent{{ID: "evt-1"}, {ID: "evt-2"}}
	failed, err := bus.PublishBatch(context.Background(), entries)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChannelPublish)
	assert.Equal(t, 2, failed)
}

func TestRedisEventBus_CountsRejectedEntries(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bus := NewRedisEventBus(rdb, "parcel-events", logger.Nop())

	// A string under the stream key makes every XADD reply WRONGTYPE.
	require.NoError(t, mr.Set("parcel-events", "not a stream"))

	entries := []domain.OutboundEvent{{ID: "evt-1"}, {ID: "evt-2"}, {ID: "evt-3"}}
	failed, err := bus.PublishBatch(context.Background(), entries)
	require.NoError(t, err, "server rejections are counted, not returned")
	assert.Equal(t, 3, failed)
}

func TestRedisRecoveryQueue_EnqueueJSON(t *testing.T) {
	mr, rdb := newTestRedis(t)
	q := NewRedisRecoveryQueue(rdb, "")

	require.NoError(t, q.Enqueue(context.Background(), domain.RecoveryMessage{ShipmentID: "S-1", Reason: "Missing events"}))
	require.NoError(t, q.Enqueue(context.Background(), domain.RecoveryMessage{ShipmentID: "S-2", Reason: "Missing events"}))

	items, err := mr.List(DefaultRecoveryQueue)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.JSONEq(t, `{"shipmentId":"S-1","reason":"Missing events"}`, items[0])
}

func TestRedisAlertPublisher_PublishAlert(t *testing.T) {
	_, rdb := newTestRedis(t)
	pub := NewRedisAlertPublisher(rdb, "alerts")
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "alerts")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.PublishAlert(ctx, "Missing events for shipmentId S-1."))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "Missing events for shipmentId S-1.", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}

	assert.Error(t, pub.PublishAlert(ctx, ""))
}
