package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteRepository persists the audit partition to SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the audit database at dbPath
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
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

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

// initSchema creates the audit table and indexes
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp INTEGER NOT NULL,
		tenant_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT,
		component TEXT,
		trace_id TEXT,
		before_json TEXT,
		after_json TEXT
	);

	-- entity history lookups
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries(entity_type, entity_id, seq);

	-- tenant-wide reporting
	CREATE INDEX IF NOT EXISTS idx_audit_tenant_time ON audit_entries(tenant_id, timestamp);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Append writes one entry
func (r *SQLiteRepository) Append(ctx context.Context, e *Entry) error {
	if e == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, timestamp, tenant_id, entity_type, entity_id, action,
			actor, component, trace_id, before_json, after_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.Timestamp.UTC().UnixNano(), e.TenantID, string(e.EntityType), e.EntityID, e.Action,
		nullable(e.Actor), nullable(e.Component), nullable(e.TraceID),
		nullable(string(e.Before)), nullable(string(e.After)),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return fmt.Errorf("audit entry %s: %w", e.ID, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns an entity's history in append order
func (r *SQLiteRepository) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, tenant_id, entity_type, entity_id, action,
		       actor, component, trace_id, before_json, after_json
		FROM audit_entries
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY seq ASC
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CountByTenant returns how many entries a tenant produced since a point in time
func (r *SQLiteRepository) CountByTenant(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_entries WHERE tenant_id = ? AND timestamp >= ?
	`, tenantID, since.UTC().UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// scanRows scans database rows into entries
func (r *SQLiteRepository) scanRows(rows *sql.Rows) ([]*Entry, error) {
	entries := make([]*Entry, 0)

	for rows.Next() {
		var e Entry
		var ts int64
		var entityType string
		var actor, component, traceID, before, after sql.NullString

		err := rows.Scan(
			&e.ID, &ts, &e.TenantID, &entityType, &e.EntityID, &e.Action,
			&actor, &component, &traceID, &before, &after,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		e.Timestamp = time.Unix(0, ts).UTC()
		e.EntityType = EntityType(entityType)
		e.Actor = actor.String
		e.Component = component.String
		e.TraceID = traceID.String
		if before.Valid {
			e.Before = []byte(before.String)
		}
		if after.Valid {
			e.After = []byte(after.String)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
