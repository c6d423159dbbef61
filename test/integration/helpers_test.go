package integration

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dtbackend "github.com/microsoft/durabletask-go/backend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Youmanvi/bookingengine/internal/activities"
	"github.com/Youmanvi/bookingengine/internal/audit"
	"github.com/Youmanvi/bookingengine/internal/consistency"
	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/events"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/backend"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/lock"
	"github.com/Youmanvi/bookingengine/internal/middleware"
	"github.com/Youmanvi/bookingengine/internal/storage"
	"github.com/Youmanvi/bookingengine/internal/storage/sqlite"
	"github.com/Youmanvi/bookingengine/internal/workflows"
	"github.com/Youmanvi/bookingengine/test/fixtures"
)

// TestHarness runs the facade on SQLite partitions with a live durable worker
type TestHarness struct {
	Service   *consistency.Service
	Bookings  *switchableBookings
	Outbox    *events.SQLiteOutbox
	Relay     *events.Relay
	Published *recordingPublisher
	Scheduler *workflows.CascadeRetryScheduler
	Worker    dtbackend.TaskHubWorker
	Metrics   *observability.Metrics
}

// NewTestHarness opens every store under a temporary directory. The
// orchestration history is kept in memory.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()
	dir := t.TempDir()

	resources, err := sqlite.NewResourceStore(filepath.Join(dir, "resources.db"))
	require.NoError(t, err)
	t.Cleanup(func() { resources.Close() })

	bookingStore, err := sqlite.NewBookingStore(filepath.Join(dir, "bookings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bookingStore.Close() })

	auditRepo, err := audit.NewSQLiteRepository(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { auditRepo.Close() })

	outbox, err := events.NewSQLiteOutbox(filepath.Join(dir, "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { outbox.Close() })

	be, err := backend.NewSQLiteBackend(&config.BackendConfig{}, dtbackend.DefaultLogger())
	require.NoError(t, err)

	logger := observability.NewNopLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cfg := config.DefaultConfig()
	cfg.Engine.DefaultPolicy.CascadeBatchSize = 2

	h := &TestHarness{
		Bookings:  &switchableBookings{BookingStore: bookingStore, failing: map[string]bool{}},
		Outbox:    outbox,
		Published: &recordingPublisher{},
		Metrics:   metrics,
	}
	h.Scheduler = workflows.NewCascadeRetryScheduler(dtbackend.NewTaskHubClient(be), 5, 200*time.Millisecond)

	now := fixtures.At(-1, 12, 0)
	h.Service = consistency.NewService(consistency.Deps{
		Resources:    resources,
		Bookings:     h.Bookings,
		Locker:       lock.NewKeyedMutex(),
		Audit:        auditRepo,
		Outbox:       outbox,
		Logger:       logger,
		Metrics:      metrics,
		Policies:     &cfg.Engine,
		CascadeRetry: h.Scheduler,
		RecordRetry:  middleware.DefaultRetryPolicy(2),
		Clock:        func() time.Time { return now },
	})

	h.Worker = workflows.NewTaskHubWorker(be, workflows.NewWorkflowRegistry(&activities.ActivityDeps{
		Logger:  logger,
		Metrics: metrics,
		Target:  h.Service,
		RetryPolicy: middleware.RetryPolicy{
			MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1,
		},
		TimeoutDuration: 5 * time.Second,
	}), dtbackend.DefaultLogger())

	ctx := context.Background()
	require.NoError(t, h.Worker.Start(ctx))
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Worker.Shutdown(shutdownCtx)
	})

	h.Relay = events.NewRelay(logger, metrics, outbox, h.Published, cfg.Events)
	return h
}

// PublishedResource creates and publishes a resource open 08:00-22:00 every day
func (h *TestHarness) PublishedResource(t *testing.T, requiresApproval bool) *domain.Resource {
	t.Helper()
	ctx := context.Background()
	res, err := h.Service.CreateResource(ctx, consistency.CreateResourceRequest{
		TenantID:         fixtures.TenantID,
		ActorID:          "owner-1",
		Name:             "Gym hall",
		OpeningHours:     fixtures.EveryDay(8, 22),
		RequiresApproval: requiresApproval,
	})
	require.NoError(t, err)
	res, err = h.Service.PublishResource(ctx, consistency.ResourceCommand{
		TenantID: fixtures.TenantID, ResourceID: res.ID, ActorID: "owner-1", ExpectedVersion: res.Version,
	})
	require.NoError(t, err)
	return res
}

// Submit books iv on resourceID for user-1
func (h *TestHarness) Submit(t *testing.T, resourceID string, iv domain.Interval) *domain.Reservation {
	t.Helper()
	r, err := h.Service.SubmitReservation(context.Background(), consistency.SubmitReservationRequest{
		TenantID: fixtures.TenantID, ResourceID: resourceID, RequesterID: "user-1", Start: iv.Start, End: iv.End,
	})
	require.NoError(t, err)
	return r
}

// switchableBookings fails reservation updates for IDs marked failing until they are healed
type switchableBookings struct {
	storage.BookingStore
	mu      sync.Mutex
	failing map[string]bool
}

func (s *switchableBookings) Fail(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = true
}

func (s *switchableBookings) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = map[string]bool{}
}

func (s *switchableBookings) UpdateReservation(ctx context.Context, r *domain.Reservation, expected int64) error {
	s.mu.Lock()
	failing := s.failing[r.ID]
	s.mu.Unlock()
	if failing {
		return errStoreDown
	}
	return s.BookingStore.UpdateReservation(ctx, r, expected)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	return nil
}

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}
