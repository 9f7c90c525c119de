// Package sqlite implements the result store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout keeps fixed-width fractions so that text comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store owns the SQLite connection and hands out the repositories built on it.
type Store struct {
	db *sql.DB
}

// New opens the database file and ensures the schema exists.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the batch runner and the API.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Targets() *TargetRepository           { return &TargetRepository{db: s.db} }
func (s *Store) Measurements() *MeasurementRepository { return &MeasurementRepository{db: s.db} }
func (s *Store) Solutions() *SolutionRepository       { return &SolutionRepository{db: s.db} }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS url_master (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT    NOT NULL,
	site_name   TEXT,
	page_detail TEXT,
	network     TEXT    NOT NULL CHECK (network IN ('Mobile', 'Desktop')),
	is_active   INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT    NOT NULL,
	updated_at  TEXT    NOT NULL,
	UNIQUE (url, network)
);
CREATE INDEX IF NOT EXISTS idx_url_master_active ON url_master (is_active, id);

CREATE TABLE IF NOT EXISTS measurements (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	url_master_id     INTEGER REFERENCES url_master (id) ON DELETE SET NULL,
	measured_at       TEXT    NOT NULL,
	url               TEXT    NOT NULL,
	site_name         TEXT,
	page_detail       TEXT,
	network           TEXT    NOT NULL,
	performance_score INTEGER NOT NULL DEFAULT 0,
	status            TEXT    NOT NULL,
	fcp               REAL,
	lcp               REAL,
	tbt               REAL,
	speed_index       REAL,
	cls               REAL,
	tti               REAL,
	issues            TEXT,
	suggestions       TEXT,
	error             TEXT,
	report_url        TEXT
);
CREATE INDEX IF NOT EXISTS idx_measurements_measured_at ON measurements (measured_at DESC);

CREATE TABLE IF NOT EXISTS improvement_suggestions (
	issue_key  TEXT PRIMARY KEY,
	solution   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
