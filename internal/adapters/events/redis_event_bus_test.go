package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/events"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/entities"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/Patientqueuedesign/backend/internal/infrastructure/clients/redis"
)

func newTestBus(t *testing.T) *events.RedisEventBus {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := events.NewRedisEventBus(redisclient.Wrap(client))
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
	})
	return bus
}

func TestRedisEventBus_PublishSubscribe(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := providers.GetQueueChannel("D1")
	received, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)

	entry := &entities.QueueEntry{ID: "e1", PatientID: "P1"}
	published := entities.NewQueueEvent("D1", entities.QueueEventTypePatientEnqueued, entry, map[string]interface{}{"position": 1})
	require.NoError(t, bus.Publish(ctx, channel, published))

	select {
	case got := <-received:
		assert.Equal(t, published.ID, got.ID)
		assert.Equal(t, entities.QueueEventTypePatientEnqueued, got.EventType)
		assert.Equal(t, "e1", got.EntryID)
		assert.EqualValues(t, 1, got.Data["position"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisEventBus_CancelClosesSubscriberChannel(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	received, err := bus.Subscribe(ctx, providers.EventChannelQueueUpdates)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-received:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel was not closed")
	}
}

func TestRedisEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	received, err := bus.Subscribe(ctx, providers.EventChannelProviderUpdates)
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(ctx, providers.EventChannelProviderUpdates))

	_, ok := <-received
	assert.False(t, ok)
}
