package session

import "sync"

// Table maps peer addresses to their sessions on the server side. Sessions
// are independent; the table is the only state shared between connections,
// so a single mutex is enough.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Register stores a session under its peer address. A stale entry for the
// same address (a reconnecting peer) is replaced.
func (t *Table) Register(s *Session) {
	t.mu.Lock()
	t.sessions[s.Addr] = s
	t.mu.Unlock()
}

// Lookup returns the session for a peer address.
func (t *Table) Lookup(addr string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[addr]
	return s, ok
}

// Remove drops the session for a peer address, marking it closed. Called on
// DISCONNECT completion or a fatal per-session error.
func (t *Table) Remove(addr string) {
	t.mu.Lock()
	s, ok := t.sessions[addr]
	delete(t.sessions, addr)
	t.mu.Unlock()

	if ok {
		s.SetState(StateClosed)
	}
}

// Len returns the number of active sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// ActiveIDs lists the ids of all registered sessions.
func (t *Table) ActiveIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.sessions))
	for _, s := range t.sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
