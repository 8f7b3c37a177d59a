package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/handoff/pkg/eventbus"
	"github.com/dukex/handoff/pkg/events"
	"github.com/dukex/handoff/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestCreateChannel_DeliversThroughKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Minute)
	defer cancel()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_CREATE_TOPICS": "true",
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	pub, sub, err := CreateChannel(watermill.NopLogger{}, brokers, "handoff-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() {
		assert.NoError(t, bus.Close())
	}()

	at := time.Date(2025, 9, 19, 15, 0, 0, 0, time.UTC)

	err = bus.Publish(ctx, "wi-1", events.WorkItemTransitioned{
		BaseEvent: events.NewBaseEvent(bus.GenerateID(), events.WorkItemTransitionedEvent, "wi-1", at),
		StepKey:   "phase-models",
		Status:    models.WorkItemStatusInProgress,
	})
	require.NoError(t, err)

	received := make(chan *events.WorkItemTransitioned, 1)

	require.NoError(t, bus.Handle(events.WorkItemTransitionedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkItemTransitioned)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	select {
	case event := <-received:
		assert.Equal(t, "wi-1", event.WorkItemID)
		assert.Equal(t, "phase-models", event.StepKey)
		assert.Equal(t, models.WorkItemStatusInProgress, event.Status)
	case <-ctx.Done():
		t.Fatal("timed out waiting for the event from Kafka")
	}
}
