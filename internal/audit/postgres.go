package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists the audit partition to Postgres. The schema is owned by cmd/migrator.
type PostgresRepository struct {
	dbpool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	const op = "audit.postgres.New"

	dbpool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &PostgresRepository{dbpool: dbpool}, nil
}

func (r *PostgresRepository) Append(ctx context.Context, e *Entry) error {
	const op = "audit.postgres.Append"

	if e == nil {
		return fmt.Errorf("%s: audit entry cannot be nil", op)
	}

	query := `INSERT INTO audit_entries (id, recorded_at, tenant_id, entity_type, entity_id, action,
			actor, component, trace_id, before_json, after_json)
		VALUES (@id, @recordedAt, @tenantId, @entityType, @entityId, @action,
			@actor, @component, @traceId, @before, @after)`
	args := pgx.NamedArgs{
		"id":         e.ID,
		"recordedAt": e.Timestamp.UTC(),
		"tenantId":   e.TenantID,
		"entityType": string(e.EntityType),
		"entityId":   e.EntityID,
		"action":     e.Action,
		"actor":      e.Actor,
		"component":  e.Component,
		"traceId":    e.TraceID,
		"before":     jsonOrNil(e.Before),
		"after":      jsonOrNil(e.After),
	}

	if _, err := r.dbpool.Exec(ctx, query, args); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s: %w", op, ErrDuplicateEntry)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresRepository) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]*Entry, error) {
	const op = "audit.postgres.ListByEntity"

	rows, err := r.dbpool.Query(ctx, `SELECT id, recorded_at, tenant_id, entity_type, entity_id, action,
			actor, component, trace_id, before_json, after_json
		FROM audit_entries WHERE entity_type = $1 AND entity_id = $2 ORDER BY seq`,
		string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var e Entry
		var recordedAt time.Time
		var kind string
		var before, after []byte
		if err := rows.Scan(&e.ID, &recordedAt, &e.TenantID, &kind, &e.EntityID, &e.Action,
			&e.Actor, &e.Component, &e.TraceID, &before, &after); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		e.Timestamp = recordedAt.UTC()
		e.EntityType = EntityType(kind)
		e.Before = before
		e.After = after
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

// Close releases the pool
func (r *PostgresRepository) Close() {
	r.dbpool.Close()
}

func jsonOrNil(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
