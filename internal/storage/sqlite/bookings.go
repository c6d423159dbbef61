package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

const bookingsSchema = `
CREATE TABLE IF NOT EXISTS reservations (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	requester_id TEXT NOT NULL,
	start_ns INTEGER NOT NULL,
	end_ns INTEGER NOT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	idempotency_key TEXT,
	approver_id TEXT,
	actor_id TEXT,
	reason TEXT,
	submitted_at INTEGER NOT NULL,
	approved_at INTEGER,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_idempotency
	ON reservations(tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL;

-- keyset pagination for cascades and overlap scans
CREATE INDEX IF NOT EXISTS idx_reservations_resource_start
	ON reservations(resource_id, start_ns, id);

CREATE TABLE IF NOT EXISTS blocks (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	start_ns INTEGER NOT NULL,
	end_ns INTEGER NOT NULL,
	all_day INTEGER NOT NULL,
	recurrence TEXT,
	visibility TEXT NOT NULL,
	reason TEXT,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blocks_resource_status ON blocks(resource_id, status);
`

const reservationColumns = `id, tenant_id, resource_id, requester_id, start_ns, end_ns, status, version,
	idempotency_key, approver_id, actor_id, reason, submitted_at, approved_at, updated_at`

const blockColumns = `id, tenant_id, resource_id, start_ns, end_ns, all_day, recurrence, visibility,
	reason, status, version, created_at, updated_at`

// BookingStore is the SQLite bookings partition
type BookingStore struct {
	db *sql.DB
}

// NewBookingStore opens (and migrates) the bookings database at dbPath
func NewBookingStore(dbPath string) (*BookingStore, error) {
	const op = "storage.sqlite.NewBookingStore"

	db, err := open(dbPath, bookingsSchema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &BookingStore{db: db}, nil
}

// Close closes the database connection
func (s *BookingStore) Close() error {
	return s.db.Close()
}

func (s *BookingStore) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	const op = "storage.sqlite.CreateReservation"

	if err := storable(r.Interval); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var approvedAt sql.NullInt64
	if r.ApprovedAt != nil {
		approvedAt = sql.NullInt64{Int64: toNanos(*r.ApprovedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.ResourceID, r.RequesterID,
		toNanos(r.Interval.Start), toNanos(r.Interval.End), string(r.Status), r.Version,
		nullString(r.IdempotencyKey), nullString(r.ApproverID), nullString(r.ActorID), nullString(r.Reason),
		toNanos(r.SubmittedAt), approvedAt, toNanos(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *BookingStore) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	const op = "storage.sqlite.GetReservation"

	row := s.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

func (s *BookingStore) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Reservation, error) {
	const op = "storage.sqlite.FindByIdempotencyKey"

	row := s.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE tenant_id = ? AND idempotency_key = ?`, tenantID, key)
	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

func (s *BookingStore) UpdateReservation(ctx context.Context, r *domain.Reservation, expectedVersion int64) error {
	const op = "storage.sqlite.UpdateReservation"

	var approvedAt sql.NullInt64
	if r.ApprovedAt != nil {
		approvedAt = sql.NullInt64{Int64: toNanos(*r.ApprovedAt), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE reservations SET
			status = ?, version = ?, approver_id = ?, actor_id = ?, reason = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(r.Status), r.Version, nullString(r.ApproverID), nullString(r.ActorID), nullString(r.Reason),
		approvedAt, toNanos(r.UpdatedAt), r.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := casResult(res, func() (bool, error) { return s.exists(ctx, "reservations", r.ID) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *BookingStore) ListHolding(ctx context.Context, resourceID string, window domain.Interval) ([]domain.Reservation, error) {
	const op = "storage.sqlite.ListHolding"

	rows, err := s.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE resource_id = ? AND status IN ('pending', 'confirmed') AND start_ns < ? AND end_ns > ?
		ORDER BY start_ns, id`,
		resourceID, toNanos(window.End), toNanos(window.Start))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *BookingStore) FutureHolding(ctx context.Context, resourceID string, from time.Time, after *storage.Cursor, limit int) ([]domain.Reservation, error) {
	const op = "storage.sqlite.FutureHolding"

	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE resource_id = ? AND status IN ('pending', 'confirmed') AND start_ns > ?`
	args := []any{resourceID, toNanos(from)}
	if after != nil {
		query += ` AND (start_ns > ? OR (start_ns = ? AND id > ?))`
		cursor := toNanos(after.Start)
		args = append(args, cursor, cursor, after.ID)
	}
	query += ` ORDER BY start_ns, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *BookingStore) CreateBlock(ctx context.Context, b *domain.Block) error {
	const op = "storage.sqlite.CreateBlock"

	if err := storable(b.Interval); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rec, err := encodeRecurrence(b.Recurrence)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.ResourceID, toNanos(b.Interval.Start), toNanos(b.Interval.End), b.AllDay,
		rec, string(b.Visibility), nullString(b.Reason), string(b.Status), b.Version,
		toNanos(b.CreatedAt), toNanos(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *BookingStore) GetBlock(ctx context.Context, id string) (*domain.Block, error) {
	const op = "storage.sqlite.GetBlock"

	row := s.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (s *BookingStore) UpdateBlock(ctx context.Context, b *domain.Block, expectedVersion int64) error {
	const op = "storage.sqlite.UpdateBlock"

	res, err := s.db.ExecContext(ctx, `UPDATE blocks SET status = ?, version = ?, reason = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(b.Status), b.Version, nullString(b.Reason), toNanos(b.UpdatedAt), b.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := casResult(res, func() (bool, error) { return s.exists(ctx, "blocks", b.ID) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *BookingStore) ListActiveBlocks(ctx context.Context, resourceID string) ([]domain.Block, error) {
	const op = "storage.sqlite.ListActiveBlocks"

	rows, err := s.db.QueryContext(ctx, `SELECT `+blockColumns+` FROM blocks
		WHERE resource_id = ? AND status = 'active' ORDER BY id`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *BookingStore) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table+` WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(row scanner) (*domain.Reservation, error) {
	var r domain.Reservation
	var status string
	var startNs, endNs, submitted, updated int64
	var idemKey, approver, actor, reason sql.NullString
	var approvedAt sql.NullInt64
	err := row.Scan(&r.ID, &r.TenantID, &r.ResourceID, &r.RequesterID, &startNs, &endNs, &status, &r.Version,
		&idemKey, &approver, &actor, &reason, &submitted, &approvedAt, &updated)
	if err != nil {
		return nil, err
	}
	r.Interval = domain.Interval{Start: fromNanos(startNs), End: fromNanos(endNs)}
	r.Status = domain.ReservationStatus(status)
	r.IdempotencyKey = idemKey.String
	r.ApproverID = approver.String
	r.ActorID = actor.String
	r.Reason = reason.String
	r.SubmittedAt = fromNanos(submitted)
	r.UpdatedAt = fromNanos(updated)
	if approvedAt.Valid {
		t := fromNanos(approvedAt.Int64)
		r.ApprovedAt = &t
	}
	return &r, nil
}

func scanReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanBlock(row scanner) (*domain.Block, error) {
	var b domain.Block
	var startNs, endNs, created, updated int64
	var rec, reason sql.NullString
	var visibility, status string
	err := row.Scan(&b.ID, &b.TenantID, &b.ResourceID, &startNs, &endNs, &b.AllDay, &rec, &visibility,
		&reason, &status, &b.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	b.Interval = domain.Interval{Start: fromNanos(startNs), End: fromNanos(endNs)}
	b.Visibility = domain.Visibility(visibility)
	b.Reason = reason.String
	b.Status = domain.BlockStatus(status)
	b.CreatedAt = fromNanos(created)
	b.UpdatedAt = fromNanos(updated)
	if rec.Valid {
		var r domain.Recurrence
		if err := json.Unmarshal([]byte(rec.String), &r); err != nil {
			return nil, fmt.Errorf("decode recurrence: %w", err)
		}
		b.Recurrence = &r
	}
	return &b, nil
}

func encodeRecurrence(rec *domain.Recurrence) (sql.NullString, error) {
	if rec == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode recurrence: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

var _ storage.BookingStore = (*BookingStore)(nil)
