package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/middleware"
)

// Relay drains the outbox into a Publisher. Events are published one at a
// time in enqueue order so subscribers see an entity's events in commit order.
type Relay struct {
	log       *observability.Logger
	metrics   *observability.Metrics
	outbox    Outbox
	deliver   middleware.Step
	batchSize int
	interval  time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewRelay wraps publisher in the circuit breaker, timeout and gRPC
// classification middlewares configured by cfg.
func NewRelay(
	log *observability.Logger,
	metrics *observability.Metrics,
	outbox Outbox,
	publisher Publisher,
	cfg config.EventsConfig,
) *Relay {
	publish := func(ctx context.Context, input []byte) ([]byte, error) {
		var e Event
		if err := json.Unmarshal(input, &e); err != nil {
			return nil, err
		}
		return nil, publisher.Publish(ctx, []byte(e.Name), input)
	}

	deliver := middleware.Chain(publish,
		middleware.WithMetrics(metrics, "outbox.publish"),
		middleware.WithCircuitBreaker(log, "outbox.publish", cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout),
		middleware.WithTimeout(cfg.PublishTimeout),
		middleware.WithGRPCErrorHandling(),
	)

	return &Relay{
		log:       log,
		metrics:   metrics,
		outbox:    outbox,
		deliver:   deliver,
		batchSize: cfg.RelayBatchSize,
		interval:  cfg.RelayInterval,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start polls the outbox every interval until ctx is done or Stop is called.
// Only the first call starts the loop.
func (r *Relay) Start(ctx context.Context) {
	const op = "events.relay.Start"
	log := r.log.WithOperation(op)

	if !r.started.CompareAndSwap(false, true) {
		return
	}

	log.Info().Int("limit", r.batchSize).Dur("interval", r.interval).Msg("starting outbox relay")

	go func() {
		defer close(r.done)
		defer log.Info().Msg("stopping outbox relay")

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					log.Error().Err(err).Msg("failed to drain outbox")
				}
			}
		}
	}()
}

// Stop ends the polling loop and waits for the current batch. A relay that
// was never started returns at once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	if !r.started.CompareAndSwap(false, true) {
		<-r.done
		return
	}
	// never started; Start is now a no-op
	close(r.done)
}

// RunOnce publishes one batch of pending events. It stops at the first
// delivery failure so later events do not overtake earlier ones.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	const op = "events.relay.RunOnce"
	log := r.log.WithOperation(op)

	pending, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range pending {
		payload, err := json.Marshal(e)
		if err != nil {
			return published, err
		}

		_, err = r.deliver(ctx, payload)
		r.metrics.RecordPublish(err)
		if err != nil {
			log.Warn().Err(err).Str("event_id", e.ID.String()).Str("event", string(e.Name)).Msg("failed to publish event")
			if markErr := r.outbox.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				log.Error().Err(markErr).Str("event_id", e.ID.String()).Msg("failed to record delivery failure")
			}
			return published, nil
		}

		if err := r.outbox.MarkPublished(ctx, e.ID, time.Now().UTC()); err != nil {
			// The event will be delivered again; subscribers deduplicate on ID.
			log.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to mark event as published")
			return published, err
		}
		published++
	}

	return published, nil
}

// Drain runs batches until the outbox is empty, a delivery fails or ctx ends
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.RunOnce(ctx)
		total += n
		if err != nil || n == 0 || n < r.batchSize {
			return total, err
		}
	}
}
