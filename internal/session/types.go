// Package session tracks schema-change sessions: named units of DDL work
// that are begun, applied statement by statement, and then committed or
// rolled back. Session state lives behind the Store interface so it can be
// kept in memory or persisted across server restarts.
package session

// Status is the lifecycle state of a change session.
type Status string

const (
	StatusActive     Status = "active"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

// AppliedChange records one DDL statement executed within a session.
type AppliedChange struct {
	Statement    string `json:"statement"`
	AffectedRows int64  `json:"affected_rows"`
	AppliedAt    string `json:"applied_at"`
}

// ChangeSession is a schema-change session. Changes accumulate while the
// session is active; Commit and Rollback are terminal.
type ChangeSession struct {
	ID          string          `json:"session_id"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"created_at"`
	Status      Status          `json:"status"`
	Changes     []AppliedChange `json:"changes"`
}

// Store is the persistence contract for change sessions.
//
// Implementations must be safe for concurrent use: multiple tool calls can
// touch the same session store at once.
type Store interface {
	// Save inserts or replaces a session by ID.
	Save(s ChangeSession) error

	// Get returns the session with the given ID. The boolean reports
	// whether it exists.
	Get(id string) (ChangeSession, bool, error)

	// List returns all sessions in creation order.
	List() ([]ChangeSession, error)
}
