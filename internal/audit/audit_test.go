package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

func TestSQLiteRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSQLiteRepository(t.TempDir() + "/audit.db")
	require.NoError(t, err)
	defer repo.Close()

	at := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	first := NewEntry("tenant-1", EntityReservation, "res-1", "reservation.created", "user-1", at).
		WithComponent("reservation").
		WithSnapshots(nil, snapshot{Status: "pending", Version: 1})
	second := NewEntry("tenant-1", EntityReservation, "res-1", "reservation.approved", "admin", at.Add(time.Minute)).
		WithComponent("reservation").
		WithTraceID("trace-1").
		WithSnapshots(snapshot{Status: "pending", Version: 1}, snapshot{Status: "confirmed", Version: 2})
	other := NewEntry("tenant-1", EntityReservation, "res-2", "reservation.created", "user-2", at)

	for _, e := range []*Entry{first, second, other} {
		require.NoError(t, repo.Append(ctx, e))
	}
	assert.Error(t, repo.Append(ctx, first), "an entry is recorded exactly once")

	entries, err := repo.ListByEntity(ctx, EntityReservation, "res-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "reservation.created", entries[0].Action)
	assert.Empty(t, entries[0].Before)
	assert.Equal(t, "trace-1", entries[1].TraceID)
	assert.True(t, at.Add(time.Minute).Equal(entries[1].Timestamp))

	var after snapshot
	require.NoError(t, json.Unmarshal(entries[1].After, &after))
	assert.Equal(t, snapshot{Status: "confirmed", Version: 2}, after)

	n, err := repo.CountByTenant(ctx, "tenant-1", at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	e := NewEntry("tenant-1", EntityBlock, "blk-1", "block.created", "admin", time.Now())
	require.NoError(t, repo.Append(ctx, e))
	e.Action = "tampered"

	entries, err := repo.ListByEntity(ctx, EntityBlock, "blk-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "block.created", entries[0].Action)
	assert.Len(t, repo.All(), 1)
}
