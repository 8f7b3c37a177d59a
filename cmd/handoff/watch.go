package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dukex/handoff/pkg/eventbus"
	"github.com/dukex/handoff/pkg/events"
	"github.com/dukex/handoff/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var watchedEvents = []events.EventType{
	events.AttemptClaimedEvent,
	events.HandoffRecordedEvent,
	events.GateDecidedEvent,
	events.WorkItemTransitionedEvent,
	events.ScheduleGeneratedEvent,
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print orchestration events from the event bus as JSON lines until interrupted",
		Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
			if _, ok := a.eventBus.(eventbus.Nop); ok {
				err := errors.New("watch needs an event bus, set --event-bus")

				return services.NewValidationError("watch", err.Error(), err)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex

			encoder := json.NewEncoder(a.out)

			for _, eventType := range watchedEvents {
				err := a.eventBus.Handle(eventType, func(_ context.Context, event any) error {
					mu.Lock()
					defer mu.Unlock()

					return encoder.Encode(event)
				})
				if err != nil {
					return err
				}
			}

			err := a.eventBus.Subscribe(ctx)
			if err != nil {
				return err
			}

			a.logger.InfoContext(ctx, "Watching events", "topic", events.Topic)

			<-ctx.Done()

			return nil
		}),
	}
}
