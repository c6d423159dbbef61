// Package cascade unwinds a resource's future commitments after it is archived.
package cascade

import (
	"context"
	"time"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

// ReservationCanceller cancels one reservation of an archived resource through
// the regular per-reservation path, so it is audited and announced on its own.
// Reservations that no longer hold their slot are skipped without error and
// report cancelled false.
type ReservationCanceller interface {
	CancelArchived(ctx context.Context, reservationID string) (cancelled bool, err error)
}

// BlockDeactivator deactivates one block of an archived resource
type BlockDeactivator interface {
	DeactivateArchived(ctx context.Context, blockID string) (deactivated bool, err error)
}

// Summary reports what an archive cascade did. Failures are warnings: the
// archive itself has already committed.
type Summary struct {
	ResourceID string `json:"resource_id"`
	Cancelled  int    `json:"cancelled"`
	Failed     int    `json:"failed"`
	// Skipped counts reservations released, or kept by a restore, before the cascade reached them
	Skipped            int      `json:"skipped"`
	Deactivated        int      `json:"deactivated"`
	BlockFailures      int      `json:"block_failures"`
	BlocksSkipped      int      `json:"blocks_skipped"`
	FailedReservations []string `json:"failed_reservations,omitempty"`
	FailedBlocks       []string `json:"failed_blocks,omitempty"`
	// Incomplete is set when enumeration itself failed and items may have been missed
	Incomplete bool `json:"incomplete,omitempty"`
}

// HasFailures reports whether any item needs another attempt
func (s *Summary) HasFailures() bool {
	return s.Failed > 0 || s.BlockFailures > 0
}

type Coordinator struct {
	store       storage.BookingStore
	canceller   ReservationCanceller
	deactivator BlockDeactivator
	log         *observability.Logger
}

func NewCoordinator(store storage.BookingStore, canceller ReservationCanceller, deactivator BlockDeactivator, log *observability.Logger) *Coordinator {
	return &Coordinator{store: store, canceller: canceller, deactivator: deactivator, log: log}
}

// Archive cancels every holding reservation of resourceID that starts after
// now, in keyset batches of batchSize, then deactivates active blocks that
// have not ended. No lock is held across batches so new submissions on other
// resources and per-item writes interleave freely. Item failures are logged
// and counted, never returned.
func (c *Coordinator) Archive(ctx context.Context, resourceID string, now time.Time, batchSize int) Summary {
	const op = "cascade.Archive"
	log := c.log.WithOperation(op).WithResourceID(resourceID)

	if batchSize <= 0 {
		batchSize = 100
	}
	summary := Summary{ResourceID: resourceID}

	var cursor *storage.Cursor
	for {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("cascade interrupted")
			summary.Incomplete = true
			break
		}

		batch, err := c.store.FutureHolding(ctx, resourceID, now, cursor, batchSize)
		if err != nil {
			log.Error().Err(err).Msg("failed to enumerate future reservations")
			summary.Incomplete = true
			break
		}

		for i := range batch {
			r := &batch[i]
			cancelled, err := c.canceller.CancelArchived(ctx, r.ID)
			switch {
			case err != nil:
				log.Warn().Err(err).Str("reservation_id", r.ID).Msg("failed to cancel reservation")
				summary.Failed++
				summary.FailedReservations = append(summary.FailedReservations, r.ID)
			case cancelled:
				summary.Cancelled++
			default:
				summary.Skipped++
			}
			cursor = &storage.Cursor{Start: r.Interval.Start, ID: r.ID}
		}

		if len(batch) < batchSize {
			break
		}
	}

	blocks, err := c.store.ListActiveBlocks(ctx, resourceID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active blocks")
		summary.Incomplete = true
	}
	for i := range blocks {
		b := &blocks[i]
		if !b.EndsAfter(now) {
			continue
		}
		deactivated, err := c.deactivator.DeactivateArchived(ctx, b.ID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("block_id", b.ID).Msg("failed to deactivate block")
			summary.BlockFailures++
			summary.FailedBlocks = append(summary.FailedBlocks, b.ID)
		case deactivated:
			summary.Deactivated++
		default:
			summary.BlocksSkipped++
		}
	}

	log.Info().
		Int("cancelled", summary.Cancelled).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("blocks_deactivated", summary.Deactivated).
		Int("blocks_skipped", summary.BlocksSkipped).
		Int("block_failures", summary.BlockFailures).
		Bool("incomplete", summary.Incomplete).
		Msg("cascade finished")

	return summary
}
