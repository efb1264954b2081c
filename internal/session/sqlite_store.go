package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register sqlite driver
)

// schemaDDL defines the local schema for the SQLite session store. The
// applied-change list is stored as JSON text.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS change_sessions (
    rowid_order INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    status TEXT NOT NULL,
    changes TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_change_sessions_status ON change_sessions(status);
`

// SQLiteStore persists sessions in a local SQLite database so schema-change
// history survives server restarts. Uses WAL mode for concurrent access.
type SQLiteStore struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewSQLiteStore creates a SQLiteStore and initializes its schema. Parent
// directories are created as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	store := &SQLiteStore{DBPath: dbPath}
	if err := store.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) connect() (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	return db, nil
}

func (s *SQLiteStore) ensureSchema() error {
	db, err := s.connect()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("failed to execute session schema DDL: %w", err)
	}
	return nil
}

// Save inserts or replaces a session by ID.
func (s *SQLiteStore) Save(cs ChangeSession) error {
	db, err := s.connect()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	changes, err := json.Marshal(cs.Changes)
	if err != nil {
		return fmt.Errorf("failed to serialize session changes: %w", err)
	}

	query := `
		INSERT INTO change_sessions (session_id, description, created_at, status, changes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			description = excluded.description,
			status = excluded.status,
			changes = excluded.changes
	`
	if _, err := db.Exec(query, cs.ID, cs.Description, cs.CreatedAt, string(cs.Status), string(changes)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get returns the session with the given ID.
func (s *SQLiteStore) Get(id string) (ChangeSession, bool, error) {
	db, err := s.connect()
	if err != nil {
		return ChangeSession{}, false, err
	}
	defer func() { _ = db.Close() }()

	row := db.QueryRow(`
		SELECT session_id, description, created_at, status, changes
		FROM change_sessions WHERE session_id = ?
	`, id)

	cs, err := scanSession(row)
	if err == sql.ErrNoRows {
		return ChangeSession{}, false, nil
	}
	if err != nil {
		return ChangeSession{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	return cs, true, nil
}

// List returns all sessions in creation order.
func (s *SQLiteStore) List() ([]ChangeSession, error) {
	db, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(`
		SELECT session_id, description, created_at, status, changes
		FROM change_sessions ORDER BY rowid_order
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChangeSession
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (ChangeSession, error) {
	var cs ChangeSession
	var status, changes string
	if err := row.Scan(&cs.ID, &cs.Description, &cs.CreatedAt, &status, &changes); err != nil {
		return ChangeSession{}, err
	}
	cs.Status = Status(status)
	if err := json.Unmarshal([]byte(changes), &cs.Changes); err != nil {
		return ChangeSession{}, fmt.Errorf("corrupt changes payload: %w", err)
	}
	return cs, nil
}
