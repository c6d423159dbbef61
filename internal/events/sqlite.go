package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLiteOutbox persists the outbox to SQLite
type SQLiteOutbox struct {
	db *sql.DB
}

// NewSQLiteOutbox opens the outbox database at dbPath
func NewSQLiteOutbox(dbPath string) (*SQLiteOutbox, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	outbox := &SQLiteOutbox{db: db}
	if err := outbox.initSchema(); err != nil {
		return nil, err
	}
	return outbox, nil
}

// initSchema creates the outbox table and indexes
func (o *SQLiteOutbox) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS outbox_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		status TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		payload JSON,
		published_at INTEGER,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);

	-- relay polling
	CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events(published_at, seq);

	-- entity correlation
	CREATE INDEX IF NOT EXISTS idx_outbox_entity ON outbox_events(entity_type, entity_id);
	`

	_, err := o.db.Exec(schema)
	return err
}

// Enqueue stores an event for the relay
func (o *SQLiteOutbox) Enqueue(ctx context.Context, e *Event) error {
	var payload sql.NullString
	if len(e.Data) > 0 {
		payload = sql.NullString{String: string(e.Data), Valid: true}
	}

	_, err := o.db.ExecContext(ctx, `
		INSERT INTO outbox_events (id, name, tenant_id, entity_type, entity_id, status, occurred_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), string(e.Name), e.TenantID, e.EntityType, e.EntityID, e.Status, e.Timestamp.UTC().UnixNano(), payload)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("event %s: %w", e.ID, ErrDuplicateEvent)
		}
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	return nil
}

// Pending returns unpublished events oldest first
func (o *SQLiteOutbox) Pending(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, name, tenant_id, entity_type, entity_id, status, occurred_at, payload
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY seq ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return o.scanRows(rows)
}

// MarkPublished stamps an event as delivered
func (o *SQLiteOutbox) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := o.db.ExecContext(ctx, `UPDATE outbox_events SET published_at = ? WHERE id = ?`,
		at.UTC().UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

// MarkFailed counts a failed delivery attempt
func (o *SQLiteOutbox) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := o.db.ExecContext(ctx, `UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		reason, id.String())
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

// PrunePublished deletes delivered events older than olderThan
func (o *SQLiteOutbox) PrunePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().UnixNano()

	result, err := o.db.ExecContext(ctx, `
		DELETE FROM outbox_events
		WHERE published_at IS NOT NULL AND published_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (o *SQLiteOutbox) Close() error {
	return o.db.Close()
}

// scanRows scans database rows into events
func (o *SQLiteOutbox) scanRows(rows *sql.Rows) ([]*Event, error) {
	events := make([]*Event, 0)

	for rows.Next() {
		var e Event
		var id, name string
		var occurredAt int64
		var payload sql.NullString

		if err := rows.Scan(&id, &name, &e.TenantID, &e.EntityType, &e.EntityID, &e.Status, &occurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid event id %q: %w", id, err)
		}
		e.ID = parsed
		e.Name = Name(name)
		e.Timestamp = time.Unix(0, occurredAt).UTC()
		if payload.Valid {
			e.Data = []byte(payload.String)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
