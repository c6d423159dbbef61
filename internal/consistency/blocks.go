package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/conflict"
	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/events"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
	"github.com/Youmanvi/bookingengine/internal/reservation"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

// BlockResult is a created block plus the reservations it now overlaps.
// Blocks win: those reservations are reported, not cancelled.
type BlockResult struct {
	Block       *domain.Block  `json:"block"`
	Overlapping []conflict.Ref `json:"overlapping,omitempty"`
}

func (s *Service) CreateBlock(ctx context.Context, req CreateBlockRequest) (result *BlockResult, err error) {
	ctx, log, finish := s.begin(ctx, "CreateBlock")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	var rec *domain.Recurrence
	if req.Recurrence != "" {
		rec, err = domain.ParseRecurrence(req.Recurrence)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidationFailed, err.Error(), nil)
		}
	}

	release, err := s.locker.Lock(ctx, reservation.LockKey(req.ResourceID))
	if err != nil {
		return nil, apperrors.Storage("lock resource", err)
	}
	defer release()

	res, err := s.ownedResource(ctx, req.TenantID, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if res.Status == domain.ResourceStatusArchived || res.Status == domain.ResourceStatusDeleted {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransition,
			fmt.Sprintf("resource %s is %s and cannot take new blocks", res.ID, res.Status), nil)
	}

	block, err := domain.NewBlock(s.newID(), req.TenantID, res.ID,
		domain.Interval{Start: req.Start.UTC(), End: req.End.UTC()}, req.AllDay, res.Location(), rec, s.now())
	if err != nil {
		return nil, err
	}
	if req.Visibility != "" {
		block.Visibility = req.Visibility
	}
	block.Reason = req.Reason

	overlapping, err := s.overlappingReservations(ctx, block, s.policies.PolicyFor(req.TenantID))
	if err != nil {
		return nil, err
	}
	if err := s.bookings.CreateBlock(ctx, block); err != nil {
		return nil, storage.Classify("create block", err)
	}

	log.WithResourceID(res.ID).Info().
		Str("block_id", block.ID).
		Int("overlapping", len(overlapping)).
		Msg("block created")

	s.record(ctx, log, change{
		tenantID:   block.TenantID,
		entityType: audit.EntityBlock,
		entityID:   block.ID,
		action:     "create",
		actor:      req.ActorID,
		component:  componentBlock,
		event:      events.BlockCreated,
		status:     string(block.Status),
		after:      block,
	})
	return &BlockResult{Block: block, Overlapping: overlapping}, nil
}

// overlappingReservations finds holding reservations hit by any occurrence of
// the block. Open-ended series are checked over the tenant's availability horizon.
func (s *Service) overlappingReservations(ctx context.Context, b *domain.Block, policy config.TenantPolicy) ([]conflict.Ref, error) {
	horizon := domain.Interval{Start: b.Interval.Start, End: b.Interval.End}
	if end, bounded := b.SeriesEnd(); bounded {
		horizon.End = end
	} else {
		horizon.End = b.Interval.Start.Add(time.Duration(policy.MaxAvailabilityDays) * 24 * time.Hour)
	}
	if horizon.End.Before(b.Interval.End) {
		horizon.End = b.Interval.End
	}

	holding, err := s.bookings.ListHolding(ctx, b.ResourceID, horizon)
	if err != nil {
		return nil, storage.Classify("list holding reservations", err)
	}
	var refs []conflict.Ref
	for _, r := range holding {
		q := conflict.Query{ResourceID: b.ResourceID, Candidate: r.Interval}
		if conflict.HasConflict(q, nil, []domain.Block{*b}) {
			refs = append(refs, conflict.Ref{Kind: conflict.KindReservation, ID: r.ID, Interval: r.Interval})
		}
	}
	return refs, nil
}

func (s *Service) CancelBlock(ctx context.Context, req CancelBlockRequest) (b *domain.Block, err error) {
	ctx, log, finish := s.begin(ctx, "CancelBlock")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	current, err := s.bookings.GetBlock(ctx, req.BlockID)
	if err != nil {
		return nil, storage.Classify(fmt.Sprintf("get block %s", req.BlockID), err)
	}
	if current.TenantID != req.TenantID {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("block %s", req.BlockID), nil)
	}
	if current.Version != req.ExpectedVersion {
		return nil, apperrors.Wrap(apperrors.ErrStaleVersion,
			fmt.Sprintf("block %s is at version %d, not %d", current.ID, current.Version, req.ExpectedVersion), nil)
	}

	before := *current
	b = current
	if err := b.Cancel(s.now()); err != nil {
		return nil, err
	}
	if err := s.bookings.UpdateBlock(ctx, b, before.Version); err != nil {
		return nil, storage.Classify("update block", err)
	}
	log.Info().Str("block_id", b.ID).Msg("block cancelled")

	s.record(ctx, log, change{
		tenantID:   b.TenantID,
		entityType: audit.EntityBlock,
		entityID:   b.ID,
		action:     "cancel",
		actor:      req.ActorID,
		component:  componentBlock,
		event:      events.BlockCancelled,
		status:     string(b.Status),
		before:     &before,
		after:      b,
	})
	return b, nil
}

// DeactivateArchived deactivates one block of an archived resource. Blocks
// that are no longer active, or whose resource was restored, are skipped and
// report deactivated false.
func (s *Service) DeactivateArchived(ctx context.Context, blockID string) (deactivated bool, err error) {
	ctx, log, finish := s.begin(ctx, "DeactivateArchived")
	defer func() { finish(err) }()

	b, err := s.bookings.GetBlock(ctx, blockID)
	if err != nil {
		return false, storage.Classify(fmt.Sprintf("get block %s", blockID), err)
	}
	if !b.IsActive() {
		return false, nil
	}
	res, err := s.resources.GetResource(ctx, b.ResourceID)
	if err != nil {
		return false, storage.Classify("get resource", err)
	}
	if res.Status != domain.ResourceStatusArchived {
		return false, nil
	}

	before := *b
	if err := b.Deactivate(s.now()); err != nil {
		return false, err
	}
	if err := s.bookings.UpdateBlock(ctx, b, before.Version); err != nil {
		return false, storage.Classify("update block", err)
	}

	s.record(ctx, log, change{
		tenantID:   b.TenantID,
		entityType: audit.EntityBlock,
		entityID:   b.ID,
		action:     "deactivate",
		actor:      cascadeActor,
		component:  componentCascade,
		event:      events.BlockDeactivated,
		status:     string(b.Status),
		before:     &before,
		after:      b,
	})
	return true, nil
}
