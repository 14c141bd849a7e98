// Package snapshot persists the content history of monitored targets.
// One row is appended per check cycle per URL; history is retained until
// the retention cleanup removes rows older than the configured window.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"sitewatch/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

// Config holds snapshot store settings. Retention policy lives with the
// watcher, which anchors the cutoff and calls DeleteOlderThan.
type Config struct {
	// Path of the SQLite database file. ":memory:" style DSNs work too.
	Path string
}

// Snapshot is one stored copy of a target's content, plus the diff that
// was computed when it replaced the previous one.
type Snapshot struct {
	ID        string
	URL       string
	Timestamp time.Time
	Content   string
	Diff      string
}

// SQLiteStore implements snapshot persistence on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens (or creates) the database at cfg.Path and applies
// the schema.
func NewSQLiteStore(cfg Config, logger logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		return nil, errors.New("snapshot: nil logger provided")
	}
	if cfg.Path == "" {
		return nil, errors.New("snapshot: empty database path")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("snapshot store initialized", logging.Field{Key: "path", Value: cfg.Path})

	return &SQLiteStore{db: db, logger: logger}, nil
}

// NewSQLiteStoreFromDB wraps an existing database handle. Used by tests
// that prepare an in-memory database themselves.
func NewSQLiteStoreFromDB(db *sql.DB, logger logging.Logger) (*SQLiteStore, error) {
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Append stores a new snapshot row. A zero ID or Timestamp is filled in.
func (s *SQLiteStore) Append(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot: nil snapshot")
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, url, timestamp, content_snapshot, diff) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.URL, snap.Timestamp.UnixNano(), snap.Content, snap.Diff)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	s.logger.Debug("snapshot appended",
		logging.Field{Key: "url", Value: snap.URL},
		logging.Field{Key: "id", Value: snap.ID})
	return nil
}

// MostRecent returns the latest snapshot for url, or nil when the URL
// has never been snapshotted (first-run semantics).
func (s *SQLiteStore) MostRecent(ctx context.Context, url string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, timestamp, content_snapshot, diff
		   FROM snapshots WHERE url = ? ORDER BY timestamp DESC LIMIT 1`, url)

	var snap Snapshot
	var ts int64
	err := row.Scan(&snap.ID, &snap.URL, &ts, &snap.Content, &snap.Diff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query most recent snapshot: %w", err)
	}
	snap.Timestamp = time.Unix(0, ts)
	return &snap, nil
}

// DeleteOlderThan removes every row with timestamp <= cutoff in a single
// bulk delete and reports how many rows went away.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE timestamp <= ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	s.logger.Info("snapshot cleanup done",
		logging.Field{Key: "cutoff", Value: cutoff.Format(time.RFC3339)},
		logging.Field{Key: "deleted", Value: n})
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
