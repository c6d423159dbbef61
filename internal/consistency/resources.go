package consistency

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/cascade"
	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/events"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
	"github.com/Youmanvi/bookingengine/internal/reservation"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

// ArchiveResult is the committed archive plus what its cascade did
type ArchiveResult struct {
	Resource *domain.Resource `json:"resource"`
	Cascade  cascade.Summary  `json:"cascade"`
	// RetryInstanceID names the durable retry scheduled for failed items, if any
	RetryInstanceID string `json:"retry_instance_id,omitempty"`
}

// CloneResult lists every entity the clone saga created
type CloneResult struct {
	Resource   *domain.Resource   `json:"resource"`
	PriceRules []domain.PriceRule `json:"price_rules"`
	Amenities  []domain.Amenity   `json:"amenities"`
}

func (s *Service) CreateResource(ctx context.Context, req CreateResourceRequest) (res *domain.Resource, err error) {
	ctx, log, finish := s.begin(ctx, "CreateResource")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	res, err = domain.NewResource(s.newID(), req.TenantID, req.Name, req.OpeningHours, s.now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidationFailed, err.Error(), nil)
	}
	res.TimeZone = req.TimeZone
	res.SlotMinutes = req.SlotMinutes
	res.MinDuration = req.MinDuration
	res.MaxDuration = req.MaxDuration
	res.Capacity = req.Capacity
	res.RequiresApproval = req.RequiresApproval
	if err := res.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidationFailed, err.Error(), nil)
	}

	if err := s.resources.CreateResource(ctx, res); err != nil {
		return nil, storage.Classify("create resource", err)
	}
	log.WithResourceID(res.ID).Info().Msg("resource created")

	s.record(ctx, log, change{
		tenantID:   res.TenantID,
		entityType: audit.EntityResource,
		entityID:   res.ID,
		action:     "create",
		actor:      req.ActorID,
		component:  componentResource,
		event:      events.ResourceCreated,
		status:     string(res.Status),
		after:      res,
	})
	return res, nil
}

func (s *Service) GetResource(ctx context.Context, tenantID, id string) (res *domain.Resource, err error) {
	ctx, _, finish := s.begin(ctx, "GetResource")
	defer func() { finish(err) }()

	return s.ownedResource(ctx, tenantID, id)
}

// ownedResource hides resources of other tenants behind NOT_FOUND
func (s *Service) ownedResource(ctx context.Context, tenantID, id string) (*domain.Resource, error) {
	res, err := s.resources.GetResource(ctx, id)
	if err != nil {
		return nil, storage.Classify(fmt.Sprintf("get resource %s", id), err)
	}
	if res.TenantID != tenantID {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("resource %s", id), nil)
	}
	return res, nil
}

func (s *Service) PublishResource(ctx context.Context, cmd ResourceCommand) (*domain.Resource, error) {
	return s.lifecycle(ctx, "PublishResource", "publish", events.ResourcePublished, cmd, (*domain.Resource).Publish)
}

func (s *Service) UnpublishResource(ctx context.Context, cmd ResourceCommand) (*domain.Resource, error) {
	return s.lifecycle(ctx, "UnpublishResource", "unpublish", events.ResourceUnpublished, cmd, (*domain.Resource).Unpublish)
}

// RestoreResource brings an archived resource back as unpublished. Reservations
// cancelled by the archive stay cancelled.
func (s *Service) RestoreResource(ctx context.Context, cmd ResourceCommand) (*domain.Resource, error) {
	return s.lifecycle(ctx, "RestoreResource", "restore", events.ResourceRestored, cmd, (*domain.Resource).Restore)
}

// ArchiveResource withdraws a resource, then cancels its future reservations
// and deactivates its remaining blocks. The archive commits first; cascade
// failures are reported in the result and never undo it.
func (s *Service) ArchiveResource(ctx context.Context, cmd ResourceCommand) (result *ArchiveResult, err error) {
	res, err := s.lifecycle(ctx, "ArchiveResource", "archive", events.ResourceArchived, cmd, (*domain.Resource).Archive)
	if err != nil {
		return nil, err
	}

	summary, instanceID := s.runCascade(context.WithoutCancel(ctx), res.TenantID, res.ID)
	return &ArchiveResult{Resource: res, Cascade: summary, RetryInstanceID: instanceID}, nil
}

// ResumeCascade re-runs the cascade of an archived resource, e.g. after an
// interrupted enumeration. Items already released are skipped.
func (s *Service) ResumeCascade(ctx context.Context, tenantID, resourceID string) (summary cascade.Summary, err error) {
	ctx, log, finish := s.begin(ctx, "ResumeCascade")
	defer func() { finish(err) }()

	res, err := s.ownedResource(ctx, tenantID, resourceID)
	if err != nil {
		return cascade.Summary{}, err
	}
	if res.Status != domain.ResourceStatusArchived {
		log.Info().Str("resource_id", res.ID).Str("status", string(res.Status)).Msg("resource no longer archived, nothing to resume")
		return cascade.Summary{ResourceID: res.ID}, nil
	}
	summary = s.cascade.Archive(ctx, res.ID, s.now(), s.policies.PolicyFor(tenantID).CascadeBatchSize)
	s.metrics.RecordCascade(summary.Cancelled, summary.Failed, summary.Deactivated)
	return summary, nil
}

func (s *Service) runCascade(ctx context.Context, tenantID, resourceID string) (cascade.Summary, string) {
	ctx, log, finish := s.begin(ctx, "ArchiveCascade")
	defer finish(nil)

	summary := s.cascade.Archive(ctx, resourceID, s.now(), s.policies.PolicyFor(tenantID).CascadeBatchSize)
	s.metrics.RecordCascade(summary.Cancelled, summary.Failed, summary.Deactivated)

	if !summary.HasFailures() && !summary.Incomplete {
		return summary, ""
	}
	if s.cascadeRetry == nil {
		log.Warn().
			Str("resource_id", resourceID).
			Strs("failed_reservations", summary.FailedReservations).
			Strs("failed_blocks", summary.FailedBlocks).
			Msg("cascade left items for manual reconciliation")
		return summary, ""
	}
	instanceID, err := s.cascadeRetry.ScheduleCascadeRetry(ctx, tenantID, summary)
	if err != nil {
		log.Error().Err(err).Str("resource_id", resourceID).Msg("failed to schedule cascade retry")
		return summary, ""
	}
	log.Info().Str("resource_id", resourceID).Str("instance_id", instanceID).Msg("cascade retry scheduled")
	return summary, instanceID
}

// lifecycle applies one resource status change under the resource lock, as a
// compare-and-swap on the caller's expected version
func (s *Service) lifecycle(
	ctx context.Context,
	op, action string,
	event events.Name,
	cmd ResourceCommand,
	apply func(*domain.Resource, time.Time) error,
) (res *domain.Resource, err error) {
	ctx, log, finish := s.begin(ctx, op)
	defer func() { finish(err) }()

	if err := s.check(cmd); err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, reservation.LockKey(cmd.ResourceID))
	if err != nil {
		return nil, apperrors.Storage("lock resource", err)
	}
	defer release()

	current, err := s.ownedResource(ctx, cmd.TenantID, cmd.ResourceID)
	if err != nil {
		return nil, err
	}
	if current.Version != cmd.ExpectedVersion {
		return nil, apperrors.Wrap(apperrors.ErrStaleVersion,
			fmt.Sprintf("resource %s is at version %d, not %d", current.ID, current.Version, cmd.ExpectedVersion), nil)
	}

	before := *current
	res = current
	if err := apply(res, s.now()); err != nil {
		return nil, err
	}
	if err := s.resources.UpdateResource(ctx, res, before.Version); err != nil {
		return nil, storage.Classify("update resource", err)
	}

	log.WithResourceID(res.ID).Info().
		Str("from", string(before.Status)).
		Str("to", string(res.Status)).
		Msg("resource status changed")

	s.record(ctx, log, change{
		tenantID:   res.TenantID,
		entityType: audit.EntityResource,
		entityID:   res.ID,
		action:     action,
		actor:      cmd.ActorID,
		component:  componentResource,
		event:      event,
		status:     string(res.Status),
		before:     &before,
		after:      res,
	})
	return res, nil
}

// AddPriceRule attaches a price rule to a resource of the tenant
func (s *Service) AddPriceRule(ctx context.Context, req AddPriceRuleRequest) (rule *domain.PriceRule, err error) {
	ctx, log, finish := s.begin(ctx, "AddPriceRule")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, apperrors.Wrap(apperrors.ErrValidationFailed, "amount cannot be negative", nil)
	}
	if _, err := s.ownedResource(ctx, req.TenantID, req.ResourceID); err != nil {
		return nil, err
	}

	rule = &domain.PriceRule{
		ID:         s.newID(),
		TenantID:   req.TenantID,
		ResourceID: req.ResourceID,
		Label:      req.Label,
		Amount:     req.Amount,
		Currency:   req.Currency,
	}
	if err := s.resources.CreatePriceRule(ctx, rule); err != nil {
		return nil, storage.Classify("create price rule", err)
	}
	s.recordPriceRule(ctx, log, rule, req.ActorID)
	return rule, nil
}

func (s *Service) AddAmenity(ctx context.Context, req AddAmenityRequest) (amenity *domain.Amenity, err error) {
	ctx, log, finish := s.begin(ctx, "AddAmenity")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	if _, err := s.ownedResource(ctx, req.TenantID, req.ResourceID); err != nil {
		return nil, err
	}

	amenity = &domain.Amenity{
		ID:         s.newID(),
		TenantID:   req.TenantID,
		ResourceID: req.ResourceID,
		Name:       req.Name,
	}
	if err := s.resources.CreateAmenity(ctx, amenity); err != nil {
		return nil, storage.Classify("create amenity", err)
	}
	s.recordAmenity(ctx, log, amenity, req.ActorID)
	return amenity, nil
}

// CloneResource copies a resource with its price rules and amenities as a
// saga. If any step fails, the entities created so far are deleted in reverse
// order; if that compensation fails too the error is COMPENSATION_FAILED and
// lists what was left behind.
func (s *Service) CloneResource(ctx context.Context, req CloneResourceRequest) (result *CloneResult, err error) {
	ctx, log, finish := s.begin(ctx, "CloneResource")
	defer func() { finish(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	source, err := s.ownedResource(ctx, req.TenantID, req.SourceID)
	if err != nil {
		return nil, err
	}
	rules, err := s.resources.ListPriceRules(ctx, source.ID)
	if err != nil {
		return nil, storage.Classify("list price rules", err)
	}
	amenities, err := s.resources.ListAmenities(ctx, source.ID)
	if err != nil {
		return nil, storage.Classify("list amenities", err)
	}

	saga := &cloneSaga{log: log}
	result = &CloneResult{Resource: source.CloneAs(s.newID(), req.Name, s.now())}

	if err := s.resources.CreateResource(ctx, result.Resource); err != nil {
		return nil, storage.Classify("create cloned resource", err)
	}
	cloneID := result.Resource.ID
	saga.push("resource", cloneID, func(ctx context.Context) error { return s.resources.DeleteResource(ctx, cloneID) })

	for _, src := range rules {
		rule := src
		rule.ID = s.newID()
		rule.ResourceID = cloneID
		if err := s.resources.CreatePriceRule(ctx, &rule); err != nil {
			return nil, s.compensate(ctx, saga, storage.Classify("create cloned price rule", err))
		}
		saga.push("price_rule", rule.ID, func(ctx context.Context) error { return s.resources.DeletePriceRule(ctx, rule.ID) })
		result.PriceRules = append(result.PriceRules, rule)
	}
	for _, src := range amenities {
		amenity := src
		amenity.ID = s.newID()
		amenity.ResourceID = cloneID
		if err := s.resources.CreateAmenity(ctx, &amenity); err != nil {
			return nil, s.compensate(ctx, saga, storage.Classify("create cloned amenity", err))
		}
		saga.push("amenity", amenity.ID, func(ctx context.Context) error { return s.resources.DeleteAmenity(ctx, amenity.ID) })
		result.Amenities = append(result.Amenities, amenity)
	}

	log.WithResourceID(cloneID).Info().
		Str("source_id", source.ID).
		Int("price_rules", len(result.PriceRules)).
		Int("amenities", len(result.Amenities)).
		Msg("resource cloned")

	s.record(ctx, log, change{
		tenantID:   result.Resource.TenantID,
		entityType: audit.EntityResource,
		entityID:   cloneID,
		action:     "clone",
		actor:      req.ActorID,
		component:  componentResource,
		event:      events.ResourceCreated,
		status:     string(result.Resource.Status),
		after:      result.Resource,
	})
	for i := range result.PriceRules {
		s.recordPriceRule(ctx, log, &result.PriceRules[i], req.ActorID)
	}
	for i := range result.Amenities {
		s.recordAmenity(ctx, log, &result.Amenities[i], req.ActorID)
	}
	return result, nil
}

// compensate undoes a failed saga. It returns cause when every compensating
// delete succeeded.
func (s *Service) compensate(ctx context.Context, saga *cloneSaga, cause error) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	orphans := saga.unwind(ctx)

	var err error
	if len(orphans) > 0 {
		err = apperrors.Wrap(apperrors.ErrCompensationFailed,
			fmt.Sprintf("orphaned after failed clone: %v", orphans), cause)
		saga.log.Error().Err(err).Strs("orphans", orphans).Msg("clone compensation failed")
	}
	s.metrics.RecordCompensation(time.Since(start), err)
	if err != nil {
		return err
	}
	return cause
}

type compensation struct {
	kind string
	id   string
	undo func(context.Context) error
}

// cloneSaga records the compensating action of every completed step
type cloneSaga struct {
	log   *observability.Logger
	steps []compensation
}

func (c *cloneSaga) push(kind, id string, undo func(context.Context) error) {
	c.steps = append(c.steps, compensation{kind: kind, id: id, undo: undo})
}

// unwind runs compensations newest first and returns "kind:id" of every
// entity that could not be removed
func (c *cloneSaga) unwind(ctx context.Context) []string {
	var orphans []string
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		err := step.undo(ctx)
		if err == nil || stderrors.Is(err, storage.ErrNotFound) {
			continue
		}
		c.log.Warn().Err(err).Str("kind", step.kind).Str("id", step.id).Msg("compensating delete failed")
		orphans = append(orphans, step.kind+":"+step.id)
	}
	return orphans
}

func (s *Service) recordPriceRule(ctx context.Context, log *observability.Logger, rule *domain.PriceRule, actor string) {
	s.record(ctx, log, change{
		tenantID:   rule.TenantID,
		entityType: audit.EntityPriceRule,
		entityID:   rule.ID,
		action:     "create",
		actor:      actor,
		component:  componentResource,
		event:      events.PricingCreated,
		status:     "active",
		after:      rule,
	})
}

func (s *Service) recordAmenity(ctx context.Context, log *observability.Logger, amenity *domain.Amenity, actor string) {
	s.record(ctx, log, change{
		tenantID:   amenity.TenantID,
		entityType: audit.EntityAmenity,
		entityID:   amenity.ID,
		action:     "create",
		actor:      actor,
		component:  componentResource,
		event:      events.AmenityCreated,
		status:     "active",
		after:      amenity,
	})
}
