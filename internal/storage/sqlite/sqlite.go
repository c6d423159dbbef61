// Package sqlite implements the bookings and resources partitions on SQLite. Each partition owns its own
// database file; no transaction spans the two.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Youmanvi/bookingengine/internal/domain"
	"github.com/Youmanvi/bookingengine/internal/storage"
)

func open(dbPath, schema string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// toNanos saturates at the int64 range so query bounds past it still order
// correctly. Stored intervals are checked with storable first.
func toNanos(t time.Time) int64 {
	switch {
	case t.Before(domain.EarliestInstant):
		return math.MinInt64
	case t.After(domain.LatestInstant):
		return math.MaxInt64
	}
	return t.UTC().UnixNano()
}

// storable rejects intervals whose bounds do not fit in int64 nanoseconds
func storable(iv domain.Interval) error {
	if iv.Start.Before(domain.EarliestInstant) || iv.End.After(domain.LatestInstant) {
		return fmt.Errorf("interval %s outside storable range", iv)
	}
	return nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// casResult maps the outcome of a versioned UPDATE to storage errors
func casResult(res sql.Result, exists func() (bool, error)) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	ok, err := exists()
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}
	return storage.ErrVersionConflict
}
