package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/handoff/pkg/eventbus"
	"github.com/dukex/handoff/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// Option customizes the ambient collaborators of a service.
type Option func(*options)

type options struct {
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
	publisher eventbus.EventPublisher
}

func newOptions(module string, opts []Option) options {
	o := options{
		now:       time.Now,
		logger:    slog.Default().With("module", module),
		tracer:    otelhelper.NoopTracer(),
		publisher: eventbus.Nop{},
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithClock replaces the wall clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithPublisher makes the service announce every successful write on the event bus.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *options) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}

// publish announces an event. Delivery failures never undo the write they describe,
// so they are logged and dropped.
func (o options) publish(ctx context.Context, key string, event eventbus.Event) {
	err := o.publisher.Publish(ctx, key, event)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}

func (o options) clock() time.Time {
	return o.now().UTC()
}
