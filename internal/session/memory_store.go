package session

import "sync"

// MemoryStore keeps sessions in process memory. State is lost on restart;
// use the SQLite store when sessions must survive the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]ChangeSession
	order    []string
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]ChangeSession)}
}

// Save inserts or replaces a session by ID.
func (s *MemoryStore) Save(cs ChangeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[cs.ID]; !exists {
		s.order = append(s.order, cs.ID)
	}
	s.sessions[cs.ID] = cs
	return nil
}

// Get returns the session with the given ID.
func (s *MemoryStore) Get(id string) (ChangeSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[id]
	return cs, ok, nil
}

// List returns all sessions in creation order.
func (s *MemoryStore) List() ([]ChangeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChangeSession, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id])
	}
	return out, nil
}
