package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

const resourcesSchema = `
CREATE TABLE IF NOT EXISTS resources (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	time_zone TEXT,
	opening_hours TEXT,
	slot_minutes INTEGER NOT NULL,
	min_duration_ns INTEGER NOT NULL,
	max_duration_ns INTEGER NOT NULL,
	capacity INTEGER NOT NULL,
	requires_approval INTEGER NOT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS price_rules (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	label TEXT NOT NULL,
	amount TEXT NOT NULL,
	currency TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_rules_resource ON price_rules(resource_id);

CREATE TABLE IF NOT EXISTS amenities (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	name TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_amenities_resource ON amenities(resource_id);
`

const resourceColumns = `id, tenant_id, name, time_zone, opening_hours, slot_minutes, min_duration_ns,
	max_duration_ns, capacity, requires_approval, status, version, created_at, updated_at`

// ResourceStore is the SQLite resources partition
type ResourceStore struct {
	db *sql.DB
}

// NewResourceStore opens (and migrates) the resources database at dbPath
func NewResourceStore(dbPath string) (*ResourceStore, error) {
	const op = "storage.sqlite.NewResourceStore"

	db, err := open(dbPath, resourcesSchema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ResourceStore{db: db}, nil
}

// Close closes the database connection
func (s *ResourceStore) Close() error {
	return s.db.Close()
}

func (s *ResourceStore) CreateResource(ctx context.Context, r *domain.Resource) error {
	const op = "storage.sqlite.CreateResource"

	hours, err := encodeHours(r.OpeningHours)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO resources (`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.Name, nullString(r.TimeZone), hours, r.SlotMinutes,
		int64(r.MinDuration), int64(r.MaxDuration), r.Capacity, r.RequiresApproval,
		string(r.Status), r.Version, toNanos(r.CreatedAt), toNanos(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *ResourceStore) GetResource(ctx context.Context, id string) (*domain.Resource, error) {
	const op = "storage.sqlite.GetResource"

	var r domain.Resource
	var tz, hours sql.NullString
	var minNs, maxNs, created, updated int64
	var status string

	err := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id).Scan(
		&r.ID, &r.TenantID, &r.Name, &tz, &hours, &r.SlotMinutes, &minNs, &maxNs, &r.Capacity,
		&r.RequiresApproval, &status, &r.Version, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.TimeZone = tz.String
	r.MinDuration = time.Duration(minNs)
	r.MaxDuration = time.Duration(maxNs)
	r.Status = domain.ResourceStatus(status)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	if hours.Valid {
		if err := json.Unmarshal([]byte(hours.String), &r.OpeningHours); err != nil {
			return nil, fmt.Errorf("%s: decode opening hours: %w", op, err)
		}
	}
	return &r, nil
}

func (s *ResourceStore) UpdateResource(ctx context.Context, r *domain.Resource, expectedVersion int64) error {
	const op = "storage.sqlite.UpdateResource"

	hours, err := encodeHours(r.OpeningHours)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE resources SET
			name = ?, time_zone = ?, opening_hours = ?, slot_minutes = ?, min_duration_ns = ?, max_duration_ns = ?,
			capacity = ?, requires_approval = ?, status = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.Name, nullString(r.TimeZone), hours, r.SlotMinutes, int64(r.MinDuration), int64(r.MaxDuration),
		r.Capacity, r.RequiresApproval, string(r.Status), r.Version, toNanos(r.UpdatedAt),
		r.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := casResult(res, func() (bool, error) { return s.exists(ctx, "resources", r.ID) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *ResourceStore) DeleteResource(ctx context.Context, id string) error {
	return s.delete(ctx, "storage.sqlite.DeleteResource", "resources", id)
}

func (s *ResourceStore) CreatePriceRule(ctx context.Context, p *domain.PriceRule) error {
	const op = "storage.sqlite.CreatePriceRule"

	_, err := s.db.ExecContext(ctx, `INSERT INTO price_rules (id, tenant_id, resource_id, label, amount, currency)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.ResourceID, p.Label, p.Amount.String(), p.Currency)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *ResourceStore) ListPriceRules(ctx context.Context, resourceID string) ([]domain.PriceRule, error) {
	const op = "storage.sqlite.ListPriceRules"

	rows, err := s.db.QueryContext(ctx, `SELECT id, tenant_id, resource_id, label, amount, currency
		FROM price_rules WHERE resource_id = ? ORDER BY id`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.PriceRule
	for rows.Next() {
		var p domain.PriceRule
		var amount string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.ResourceID, &p.Label, &amount, &p.Currency); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%s: decode amount: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *ResourceStore) DeletePriceRule(ctx context.Context, id string) error {
	return s.delete(ctx, "storage.sqlite.DeletePriceRule", "price_rules", id)
}

func (s *ResourceStore) CreateAmenity(ctx context.Context, a *domain.Amenity) error {
	const op = "storage.sqlite.CreateAmenity"

	_, err := s.db.ExecContext(ctx, `INSERT INTO amenities (id, tenant_id, resource_id, name) VALUES (?, ?, ?, ?)`,
		a.ID, a.TenantID, a.ResourceID, a.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *ResourceStore) ListAmenities(ctx context.Context, resourceID string) ([]domain.Amenity, error) {
	const op = "storage.sqlite.ListAmenities"

	rows, err := s.db.QueryContext(ctx, `SELECT id, tenant_id, resource_id, name
		FROM amenities WHERE resource_id = ? ORDER BY id`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Amenity
	for rows.Next() {
		var a domain.Amenity
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ResourceID, &a.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *ResourceStore) DeleteAmenity(ctx context.Context, id string) error {
	return s.delete(ctx, "storage.sqlite.DeleteAmenity", "amenities", id)
}

func (s *ResourceStore) delete(ctx context.Context, op, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func (s *ResourceStore) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table+` WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func encodeHours(hours domain.OpeningHours) (sql.NullString, error) {
	if hours == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(hours)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode opening hours: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

var _ storage.ResourceStore = (*ResourceStore)(nil)
