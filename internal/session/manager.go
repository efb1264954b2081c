package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pgentity/entity-mcp/internal/database"
)

// NewStore selects a session store implementation by backend name.
// An empty backend defaults to the in-memory store.
func NewStore(backend, sqlitePath string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown session backend: %q. Expected 'memory' or 'sqlite'", backend)
	}
}

// Manager drives the schema-change session lifecycle against a shared
// database pool.
type Manager struct {
	store Store
	db    *database.Manager
	log   zerolog.Logger
}

// NewManager creates a session manager over the given store and database
// manager.
func NewManager(store Store, db *database.Manager, log zerolog.Logger) *Manager {
	return &Manager{store: store, db: db, log: log}
}

// Begin creates a new active session and returns it.
func (m *Manager) Begin(description string) (ChangeSession, error) {
	cs := ChangeSession{
		ID:          uuid.NewString(),
		Description: description,
		CreatedAt:   time.Now().Format(time.RFC3339),
		Status:      StatusActive,
		Changes:     []AppliedChange{},
	}
	if err := m.store.Save(cs); err != nil {
		return ChangeSession{}, err
	}
	m.log.Info().Str("session_id", cs.ID).Msg("schema change session started")
	return cs, nil
}

// Apply executes DDL statements in order within an active session, recording
// each applied change. The first failing statement aborts the call; changes
// already applied in this call remain recorded on the session.
func (m *Manager) Apply(ctx context.Context, id string, statements []string) (ChangeSession, error) {
	cs, err := m.activeSession(id)
	if err != nil {
		return ChangeSession{}, err
	}
	if len(statements) == 0 {
		return ChangeSession{}, fmt.Errorf("no DDL statements provided")
	}

	for i, stmt := range statements {
		affected, err := m.db.ExecuteDDL(ctx, stmt)
		if err != nil {
			_ = m.store.Save(cs)
			return ChangeSession{}, fmt.Errorf("statement %d failed: %w", i+1, err)
		}
		cs.Changes = append(cs.Changes, AppliedChange{
			Statement:    stmt,
			AffectedRows: affected,
			AppliedAt:    time.Now().Format(time.RFC3339),
		})
	}

	if err := m.store.Save(cs); err != nil {
		return ChangeSession{}, err
	}
	m.log.Info().Str("session_id", id).Int("statements", len(statements)).
		Msg("schema changes applied")
	return cs, nil
}

// Commit marks an active session committed.
func (m *Manager) Commit(id string) (ChangeSession, error) {
	return m.finish(id, StatusCommitted)
}

// Rollback marks an active session rolled back. Applied DDL is not reversed
// automatically; the recorded change list tells the operator what to undo.
func (m *Manager) Rollback(id string) (ChangeSession, error) {
	return m.finish(id, StatusRolledBack)
}

// List returns all known sessions.
func (m *Manager) List() ([]ChangeSession, error) {
	return m.store.List()
}

func (m *Manager) finish(id string, status Status) (ChangeSession, error) {
	cs, err := m.activeSession(id)
	if err != nil {
		return ChangeSession{}, err
	}
	cs.Status = status
	if err := m.store.Save(cs); err != nil {
		return ChangeSession{}, err
	}
	m.log.Info().Str("session_id", id).Str("status", string(status)).
		Msg("schema change session finished")
	return cs, nil
}

func (m *Manager) activeSession(id string) (ChangeSession, error) {
	cs, ok, err := m.store.Get(id)
	if err != nil {
		return ChangeSession{}, err
	}
	if !ok {
		return ChangeSession{}, fmt.Errorf("session not found: %s", id)
	}
	if cs.Status != StatusActive {
		return ChangeSession{}, fmt.Errorf("session %s is %s, not active", id, cs.Status)
	}
	return cs, nil
}
