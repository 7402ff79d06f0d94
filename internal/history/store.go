// Package history keeps a durable record of watch subscriptions.
//
// Every watch the server starts is written to a SQLite table and updated as
// it changes state, so a later session can ask which watches ran, where
// their logs went, and how they ended. Rows belong to a run: one server
// process, identified by a random UUID.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level var so tests can pin the clock.
var timeNow = time.Now

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// abandonedReason is stored for watches whose server exited under them.
const abandonedReason = "server exited before the watch ended"

// ─── Types ───────────────────────────────────────────────────────────────────

// Entry is one recorded watch.
type Entry struct {
	RunID      string     `json:"run_id"`
	WatchID    uint64     `json:"watch_id"`
	Kind       string     `json:"watch_type"`
	Entity     uint64     `json:"entity_id"`
	Components []string   `json:"components,omitempty"`
	Port       int        `json:"port"`
	LogPath    string     `json:"log_path"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds history store configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// RunID identifies this process. Empty means a fresh UUID.
	RunID string
	// Logger receives write failures, which the observer path cannot return.
	Logger *zap.Logger
}

// DefaultConfig returns a config for the database at path with a new run id.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the watch history backed by SQLite. It implements watch.Observer.
type Store struct {
	db    *sql.DB
	runID string
	log   *zap.Logger
}

var _ watch.Observer = (*Store)(nil)

// New opens the database, creating its directory and schema as needed, and
// closes out rows left open by earlier runs.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{db: db, runID: runID, log: log.Named("history")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	if err := s.closeAbandoned(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: close abandoned watches: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunID identifies the current server process in the history.
func (s *Store) RunID() string {
	return s.runID
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS watches (
			run_id     TEXT    NOT NULL,
			watch_id   INTEGER NOT NULL,
			kind       TEXT    NOT NULL,
			entity     INTEGER NOT NULL,
			components TEXT    NOT NULL DEFAULT '[]',
			port       INTEGER NOT NULL,
			log_path   TEXT    NOT NULL,
			state      TEXT    NOT NULL,
			error      TEXT,
			created_at TEXT    NOT NULL,
			ended_at   TEXT,
			PRIMARY KEY (run_id, watch_id)
		);

		CREATE INDEX IF NOT EXISTS idx_watches_created ON watches(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_watches_entity  ON watches(entity);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) closeAbandoned() error {
	_, err := s.db.Exec(
		`UPDATE watches
		 SET state = ?, error = COALESCE(error, ?), ended_at = ?
		 WHERE ended_at IS NULL AND run_id != ?`,
		string(watch.StateFailed), abandonedReason, formatTime(timeNow()), s.runID,
	)
	return err
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Record inserts sub or updates its state, error and end time.
func (s *Store) Record(sub watch.Subscription) error {
	components, err := json.Marshal(nonNil(sub.Components))
	if err != nil {
		return fmt.Errorf("history: encode components: %w", err)
	}

	var endedAt *string
	if sub.State.Terminal() {
		ts := formatTime(timeNow())
		endedAt = &ts
	}

	_, err = s.db.Exec(
		`INSERT INTO watches (run_id, watch_id, kind, entity, components, port, log_path, state, error, created_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, watch_id) DO UPDATE SET
			state    = excluded.state,
			error    = COALESCE(excluded.error, watches.error),
			ended_at = COALESCE(watches.ended_at, excluded.ended_at)`,
		s.runID, int64(sub.ID), sub.Kind.String(), int64(sub.Entity), string(components), sub.Port,
		sub.LogPath, string(sub.State), nullableString(sub.Err), formatTime(sub.CreatedAt), endedAt,
	)
	if err != nil {
		return fmt.Errorf("history: record watch %d: %w", sub.ID, err)
	}
	return nil
}

// ObserveWatch records sub, logging instead of returning failures.
func (s *Store) ObserveWatch(sub watch.Subscription) {
	if err := s.Record(sub); err != nil {
		s.log.Warn("recording watch", zap.Uint64("watch_id", sub.ID), zap.Error(err))
	}
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Recent returns up to limit watches, newest first. With currentRun set
// only this process's watches are returned.
func (s *Store) Recent(limit int, currentRun bool) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, watch_id, kind, entity, components, port, log_path, state, error, created_at, ended_at
		FROM watches
		WHERE 1=1
	`
	args := []any{}
	if currentRun {
		query += " AND run_id = ?"
		args = append(args, s.runID)
	}
	query += " ORDER BY created_at DESC, watch_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// Get returns one watch of the current run.
func (s *Store) Get(watchID uint64) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT run_id, watch_id, kind, entity, components, port, log_path, state, error, created_at, ended_at
		 FROM watches WHERE run_id = ? AND watch_id = ?`,
		s.runID, int64(watchID),
	)
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e          Entry
		watchID    int64
		entity     int64
		components string
		errMsg     sql.NullString
		createdAt  string
		endedAt    sql.NullString
	)
	if err := row.Scan(&e.RunID, &watchID, &e.Kind, &entity, &components, &e.Port, &e.LogPath, &e.State, &errMsg, &createdAt, &endedAt); err != nil {
		return Entry{}, err
	}
	e.WatchID = uint64(watchID)
	e.Entity = uint64(entity)
	e.Error = errMsg.String

	if err := json.Unmarshal([]byte(components), &e.Components); err != nil {
		return Entry{}, fmt.Errorf("history: decode components of watch %d: %w", e.WatchID, err)
	}
	if len(e.Components) == 0 {
		e.Components = nil
	}

	created, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("history: created_at of watch %d: %w", e.WatchID, err)
	}
	e.CreatedAt = created
	if endedAt.Valid {
		ended, err := time.Parse(timeLayout, endedAt.String)
		if err != nil {
			return Entry{}, fmt.Errorf("history: ended_at of watch %d: %w", e.WatchID, err)
		}
		e.EndedAt = &ended
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
