package events

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// Publisher wraps payloads in envelopes and publishes them on a bus. Publish
// failures are logged and never returned: events are best effort and must
// not interrupt trading.
type Publisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPublisher creates a Publisher. A nil bus makes every call a no-op.
func NewPublisher(bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger.With(slog.String("component", "events"))}
}

// Publish sends payload as an event of the given type on channel.
func (p *Publisher) Publish(ctx context.Context, channel, eventType string, payload any) {
	if p == nil || p.bus == nil {
		return
	}
	data, err := domain.NewEnvelope(eventType, payload)
	if err != nil {
		p.logger.WarnContext(ctx, "encode event failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, channel, data); err != nil {
		p.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
