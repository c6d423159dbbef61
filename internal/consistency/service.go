// Package consistency is the single entry point for state changes. It sequences
// writes across the independent partitions, and after each write commits it
// records exactly one audit entry and one outbox event per mutated entity.
package consistency

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/cascade"
	"github.com/Youmanvi/bookingengine/internal/events"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/lock"
	"github.com/Youmanvi/bookingengine/internal/middleware"
	apperrors "github.com/Youmanvi/bookingengine/internal/pkg/errors"
	"github.com/Youmanvi/bookingengine/internal/reservation"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

// PolicyResolver resolves the per-tenant policy once per operation
type PolicyResolver interface {
	PolicyFor(tenantID string) config.TenantPolicy
}

// CascadeRetryScheduler hands an archive cascade's failed items to a durable retry
type CascadeRetryScheduler interface {
	ScheduleCascadeRetry(ctx context.Context, tenantID string, summary cascade.Summary) (string, error)
}

type Deps struct {
	Resources storage.ResourceStore
	Bookings  storage.BookingStore
	Locker    lock.Locker
	Audit     audit.Repository
	Outbox    events.Outbox
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
	Policies  PolicyResolver
	// CascadeRetry is optional; without it failed cascade items are left for manual reconciliation
	CascadeRetry CascadeRetryScheduler
	RecordRetry  middleware.RetryPolicy
	Clock        func() time.Time
	NewID        func() string
}

type Service struct {
	resources    storage.ResourceStore
	bookings     storage.BookingStore
	locker       lock.Locker
	audit        audit.Repository
	outbox       events.Outbox
	log          *observability.Logger
	metrics      *observability.Metrics
	tracer       trace.Tracer
	policies     PolicyResolver
	cascadeRetry CascadeRetryScheduler
	recordRetry  middleware.Middleware
	now          func() time.Time
	newID        func() string
	validate     *validator.Validate

	reservations *reservation.Service
	cascade      *cascade.Coordinator
}

func NewService(deps Deps) *Service {
	s := &Service{
		resources:    deps.Resources,
		bookings:     deps.Bookings,
		locker:       deps.Locker,
		audit:        deps.Audit,
		outbox:       deps.Outbox,
		log:          deps.Logger,
		metrics:      deps.Metrics,
		tracer:       deps.Tracer,
		policies:     deps.Policies,
		cascadeRetry: deps.CascadeRetry,
		recordRetry:  middleware.WithRetry(deps.Logger, deps.RecordRetry),
		now:          deps.Clock,
		newID:        deps.NewID,
		validate:     validator.New(),
	}
	if deps.RecordRetry.MaxAttempts <= 0 {
		s.recordRetry = middleware.WithRetry(deps.Logger, middleware.DefaultRetryPolicy(3))
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.tracer == nil {
		s.tracer = observability.GetTracer("consistency")
	}
	s.reservations = reservation.NewService(deps.Bookings, deps.Resources, deps.Locker)
	s.cascade = cascade.NewCoordinator(deps.Bookings, s, s, deps.Logger)
	return s
}

// begin opens the span and timer of a facade operation. finish must be
// called with the operation's final error.
func (s *Service) begin(ctx context.Context, op string) (context.Context, *observability.Logger, func(error)) {
	ctx, span := s.tracer.Start(ctx, "consistency."+op)
	start := time.Now()
	log := s.log.WithSpan(ctx).WithOperation(op)

	return ctx, log, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, apperrors.CodeOf(err))
			log.Debug().Err(err).Str("code", apperrors.CodeOf(err)).Msg("operation rejected")
		}
		span.End()
		s.metrics.ObserveOperation(op, time.Since(start))
	}
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			return apperrors.Wrap(apperrors.ErrValidationFailed, verrs.Error(), nil)
		}
		return apperrors.Wrap(apperrors.ErrValidationFailed, err.Error(), err)
	}
	return nil
}

// change describes one committed mutation of one entity
type change struct {
	tenantID   string
	entityType audit.EntityType
	entityID   string
	action     string
	actor      string
	component  string
	event      events.Name
	status     string
	before     any
	after      any
}

// record writes the audit entry, then the outbox event, for a committed
// change. The state write has already happened and is never undone here:
// a record that still fails after retries is logged and counted.
func (s *Service) record(ctx context.Context, log *observability.Logger, c change) {
	ctx = context.WithoutCancel(ctx)
	at := s.now()

	entry := audit.NewEntry(c.tenantID, c.entityType, c.entityID, c.action, c.actor, at).
		WithComponent(c.component).
		WithTraceID(observability.TraceIDFromContext(ctx)).
		WithSnapshots(c.before, c.after)

	appendEntry := middleware.Chain(func(ctx context.Context, _ []byte) ([]byte, error) {
		err := s.audit.Append(ctx, entry)
		if stderrors.Is(err, audit.ErrDuplicateEntry) {
			return nil, nil
		}
		return nil, err
	}, s.recordRetry)
	if _, err := appendEntry(ctx, nil); err != nil {
		log.Error().Err(err).
			Str("entity_type", string(c.entityType)).
			Str("entity_id", c.entityID).
			Str("action", c.action).
			Msg("failed to write audit entry after commit")
		s.metrics.RecordRecordFailure("audit")
	}

	event, err := events.New(c.event, c.tenantID, string(c.entityType), c.entityID, c.status, at, c.after)
	if err != nil {
		log.Error().Err(err).Str("event", string(c.event)).Msg("failed to build event")
		s.metrics.RecordRecordFailure("outbox")
		return
	}
	enqueue := middleware.Chain(func(ctx context.Context, _ []byte) ([]byte, error) {
		err := s.outbox.Enqueue(ctx, event)
		if stderrors.Is(err, events.ErrDuplicateEvent) {
			return nil, nil
		}
		return nil, err
	}, s.recordRetry)
	if _, err := enqueue(ctx, nil); err != nil {
		log.Error().Err(err).
			Str("event", string(c.event)).
			Str("entity_id", c.entityID).
			Msg("failed to enqueue event after commit")
		s.metrics.RecordRecordFailure("outbox")
	}
}

// AuditTrail returns the tenant's audit history of one entity in append order
func (s *Service) AuditTrail(ctx context.Context, tenantID string, entityType audit.EntityType, entityID string) (entries []*audit.Entry, err error) {
	ctx, _, finish := s.begin(ctx, "AuditTrail")
	defer func() { finish(err) }()

	if tenantID == "" || entityID == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidationFailed, "tenant and entity IDs are required", nil)
	}

	all, err := s.audit.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, apperrors.Storage("list audit entries", err)
	}
	entries = make([]*audit.Entry, 0, len(all))
	for _, e := range all {
		if e.TenantID == tenantID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
