// Package db is the local SQLite accounting cache: finished-job rows for
// the database-backed job source, plus a log of reporter runs.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DB wraps sql.DB with additional context
type DB struct {
	*sql.DB
	path string
}

// Config holds database connection configuration
type Config struct {
	Path            string        `toml:"path"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// ErrDuplicate marks an insert that collides with an existing row
var ErrDuplicate = errors.New("db: duplicate key")

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	jobid      TEXT NOT NULL,
	cluster    TEXT NOT NULL,
	state      TEXT NOT NULL,
	username   TEXT NOT NULL,
	project    TEXT NOT NULL,
	jobname    TEXT NOT NULL DEFAULT '',
	start_time INTEGER NOT NULL,
	end_time   INTEGER NOT NULL,
	cores      INTEGER NOT NULL DEFAULT 0,
	nodes      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (cluster, jobid)
);

CREATE INDEX IF NOT EXISTS idx_jobs_project_end
	ON jobs (cluster, project, end_time);

CREATE TABLE IF NOT EXISTS run_log (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	processed  INTEGER NOT NULL,
	not_run    INTEGER NOT NULL,
	no_stats   INTEGER NOT NULL
);
`

// Open creates a new database connection and applies the schema
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Schema is applied at open; a single fixed table plus a run log needs
	// no migration history
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{
		DB:   db,
		path: path,
	}, nil
}

// OpenWithConfig creates a connection with custom pool configuration
func OpenWithConfig(config Config) (*DB, error) {
	db, err := Open(config.Path)
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	return db, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// IsDuplicate checks if error is a duplicate key error
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
