package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/handoff/pkg/channels/gochannel"
	"github.com/dukex/handoff/pkg/channels/kafka"
	"github.com/dukex/handoff/pkg/eventbus"
)

// NewEventBus creates the event bus named by provider. brokers is only read by kafka.
func NewEventBus(provider, brokers, consumerGroup string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "", "none":
		return eventbus.Nop{}, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create GoChannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), kafka.ParseBrokers(brokers), consumerGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
