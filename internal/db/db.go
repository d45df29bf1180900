// Package db provides the SQLite-backed stores for the vibration pipeline:
// the session control table, the bronze raw-frame ledger and the feature mart.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the shared database handle. It is injected into each pipeline
// component; there is no process-wide singleton.
type DB struct {
	*sql.DB
}

// OpenDB opens the database at path without touching the schema. Use this
// when migrations will manage the schema (e.g. the migrate CLI).
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Sequential pipeline, single writer. WAL keeps readers (tailing
	// dashboards, ad-hoc queries) from blocking chunk inserts.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}

// NewDB opens the database at path and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	database, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	if err := database.MigrateUp(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return database, nil
}

// timeToDB formats a timestamp for storage. All timestamps are stored as
// RFC 3339 UTC strings.
func timeToDB(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timeFromDB parses a stored timestamp.
func timeFromDB(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// nullTimeFromDB converts a nullable stored timestamp into *time.Time.
func nullTimeFromDB(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := timeFromDB(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
