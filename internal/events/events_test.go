package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
)

type recordingPublisher struct {
	mu       sync.Mutex
	keys     []string
	payloads [][]byte
	failN    int
}

func (p *recordingPublisher) Publish(_ context.Context, key, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failN > 0 {
		p.failN--
		return stderrors.New("broker unreachable")
	}
	p.keys = append(p.keys, string(key))
	p.payloads = append(p.payloads, data)
	return nil
}

func relayConfig() config.EventsConfig {
	cfg := config.DefaultConfig().Events
	cfg.RelayBatchSize = 2
	cfg.RelayInterval = 5 * time.Millisecond
	cfg.PublishTimeout = time.Second
	cfg.CircuitBreakerTimeout = time.Minute
	return cfg
}

func mustEvent(t *testing.T, name Name, entityID string) *Event {
	t.Helper()
	e, err := New(name, "t1", "reservation", entityID, "pending", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), map[string]string{"id": entityID})
	require.NoError(t, err)
	return e
}

func TestRelay_DrainPublishesInOrder(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	for i, name := range []Name{ReservationCreated, ReservationApproved, ReservationCancelled} {
		require.NoError(t, outbox.Enqueue(ctx, mustEvent(t, name, string(rune('a'+i)))))
	}
	pub := &recordingPublisher{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	relay := NewRelay(observability.NewNopLogger(), metrics, outbox, pub, relayConfig())
	n, err := relay.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"reservation.created", "reservation.approved", "reservation.cancelled"}, pub.keys)

	var decoded Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, "a", decoded.EntityID)
	assert.JSONEq(t, `{"id":"a"}`, string(decoded.Data))

	pending, err := outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.EventsPublished))
}

func TestRelay_FailureKeepsEventPending(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	require.NoError(t, outbox.Enqueue(ctx, mustEvent(t, ReservationCreated, "a")))
	require.NoError(t, outbox.Enqueue(ctx, mustEvent(t, ReservationApproved, "a")))
	pub := &recordingPublisher{failN: 1}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	relay := NewRelay(observability.NewNopLogger(), metrics, outbox, pub, relayConfig())

	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "later events do not overtake a failed one")

	pending, err := outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	n, err = relay.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"reservation.created", "reservation.approved"}, pub.keys)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsFailed))
}

func TestRelay_StartStop(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	require.NoError(t, outbox.Enqueue(ctx, mustEvent(t, BlockCreated, "b1")))
	pub := &recordingPublisher{}
	relay := NewRelay(observability.NewNopLogger(), observability.NewMetrics(prometheus.NewRegistry()), outbox, pub, relayConfig())

	relay.Start(ctx)
	assert.Eventually(t, func() bool {
		pending, _ := outbox.Pending(ctx, 0)
		return len(pending) == 0
	}, time.Second, 5*time.Millisecond)
	relay.Stop()
	relay.Stop()
}

func TestMemoryOutbox_DuplicateEvent(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	e := mustEvent(t, ReservationCreated, "r1")
	require.NoError(t, outbox.Enqueue(ctx, e))

	assert.ErrorIs(t, outbox.Enqueue(ctx, e), ErrDuplicateEvent)
	assert.Len(t, outbox.All(), 1)
}

func TestRelay_StopWithoutStart(t *testing.T) {
	relay := NewRelay(observability.NewNopLogger(), observability.NewMetrics(prometheus.NewRegistry()), NewMemoryOutbox(), &recordingPublisher{}, relayConfig())

	stopped := make(chan struct{})
	go func() {
		relay.Stop()
		relay.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a relay that was never started")
	}

	// a stopped relay does not start polling again
	relay.Start(context.Background())
	relay.Stop()
}

func TestSQLiteOutbox(t *testing.T) {
	ctx := context.Background()
	outbox, err := NewSQLiteOutbox(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	defer outbox.Close()

	first := mustEvent(t, ReservationCreated, "r1")
	second := mustEvent(t, ReservationCancelled, "r1")
	require.NoError(t, outbox.Enqueue(ctx, first))
	require.NoError(t, outbox.Enqueue(ctx, second))
	assert.ErrorIs(t, outbox.Enqueue(ctx, first), ErrDuplicateEvent)

	pending, err := outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.Name, pending[1].Name)
	assert.True(t, first.Timestamp.Equal(pending[0].Timestamp))
	assert.JSONEq(t, string(first.Data), string(pending[0].Data))

	require.NoError(t, outbox.MarkFailed(ctx, first.ID, "broker down"))
	require.NoError(t, outbox.MarkPublished(ctx, first.ID, time.Now().Add(-time.Hour)))

	pending, err = outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	pruned, err := outbox.PrunePublished(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}
