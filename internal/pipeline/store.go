// File: internal/pipeline/store.go
// Brief: SQLite-backed session store: one row per run plus its event stream.

package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// Store persists sessions and their events. A single connection is enough:
// one writer per process, readers tolerate the busy timeout.
type Store struct {
	db   *sql.DB
	path string
}

// SessionRecord is one row of the session index.
type SessionRecord struct {
	SessionID      string  `json:"session_id"`
	RepoPath       string  `json:"repo_path"`
	StackKey       string  `json:"stack_key,omitempty"`
	Status         Status  `json:"status"`
	Error          string  `json:"error,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// OpenStore opens (creating when needed) the session database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS gantry_sessions (
  session_id TEXT PRIMARY KEY,
  repo_path TEXT NOT NULL,
  stack_key TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL,
  elapsed_seconds REAL NOT NULL,
  created_at_ns INTEGER NOT NULL,
  updated_at_ns INTEGER NOT NULL,
  session_json TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS gantry_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  ts_ns INTEGER NOT NULL,
  type TEXT NOT NULL,
  phase TEXT NOT NULL,
  status TEXT NOT NULL,
  message TEXT NOT NULL,
  elapsed_seconds REAL NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_gantry_events_session_id ON gantry_events(session_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

// CreateSession inserts the initial row for a new run.
func (s *Store) CreateSession(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO gantry_sessions (
  session_id, repo_path, stack_key, status, error, elapsed_seconds,
  created_at_ns, updated_at_ns, session_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, snap.ID, snap.RepoPath, snap.StackKey, string(snap.Status), snap.Error, snap.ElapsedSeconds,
		snap.CreatedAt.UnixNano(), snap.UpdatedAt.UnixNano(), string(raw))
	return errors.Wrap(err, "insert session")
}

// UpdateSession replaces the stored snapshot of an existing run.
func (s *Store) UpdateSession(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE gantry_sessions
SET stack_key = ?, status = ?, error = ?, elapsed_seconds = ?, updated_at_ns = ?, session_json = ?
WHERE session_id = ?
`, snap.StackKey, string(snap.Status), snap.Error, snap.ElapsedSeconds,
		snap.UpdatedAt.UnixNano(), string(raw), snap.ID)
	return errors.Wrap(err, "update session")
}

// AppendEvent records one event in the session's stream.
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	ts, err := time.Parse(time.RFC3339Nano, ev.TS)
	if err != nil {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO gantry_events (session_id, ts_ns, type, phase, status, message, elapsed_seconds)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, ev.SessionID, ts.UnixNano(), string(ev.Type), ev.Phase, ev.Status, ev.Message, ev.ElapsedSeconds)
	return errors.Wrap(err, "insert event")
}

// GetSession loads one full session snapshot.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_json FROM gantry_sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "session %s", sessionID)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode session")
	}
	return snap, nil
}

// MostRecentSessionID returns the newest session, by creation time.
func (s *Store) MostRecentSessionID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM gantry_sessions ORDER BY created_at_ns DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no sessions recorded")
	}
	return id, err
}

// ListSessions returns the newest sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, repo_path, stack_key, status, error, elapsed_seconds, created_at_ns, updated_at_ns
FROM gantry_sessions
ORDER BY created_at_ns DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var status string
		var createdNS, updatedNS int64
		if err := rows.Scan(&rec.SessionID, &rec.RepoPath, &rec.StackKey, &status,
			&rec.Error, &rec.ElapsedSeconds, &createdNS, &updatedNS); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		rec.CreatedAt = time.Unix(0, createdNS).UTC().Format(time.RFC3339)
		rec.UpdatedAt = time.Unix(0, updatedNS).UTC().Format(time.RFC3339)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEvents returns a session's events in emission order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ts_ns, type, phase, status, message, elapsed_seconds
FROM gantry_events
WHERE session_id = ?
ORDER BY id ASC
`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var tsNS int64
		var typ string
		if err := rows.Scan(&tsNS, &typ, &ev.Phase, &ev.Status, &ev.Message, &ev.ElapsedSeconds); err != nil {
			return nil, err
		}
		ev.SessionID = sessionID
		ev.Type = EventType(typ)
		ev.TS = time.Unix(0, tsNS).UTC().Format(time.RFC3339Nano)
		out = append(out, ev)
	}
	return out, rows.Err()
}
