package events

import (
	"context"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
)

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	log *observability.Logger
}

func NewLogPublisher(log *observability.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, key, data []byte) error {
	p.log.Info().Str("event", string(key)).RawJSON("payload", data).Msg("event published")
	return nil
}
