// Package session holds the negotiated connection state: immutable
// parameters, per-connection session entities, and the server-side table
// mapping peer addresses to sessions.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Params are the connection parameters fixed by the handshake. They never
// change for the lifetime of a session.
type Params struct {
	Mode     string // protocol.ModeStepByStep or protocol.ModeBurst
	Protocol string // protocol.ProtoGBN or protocol.ProtoSR
	MaxSize  int    // application bytes per fragment
	Window   int    // effective send/receive window (1 in step-by-step mode)
}

// State tracks a session through its lifecycle.
type State int32

const (
	StateSynReceived State = iota
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSynReceived:
		return "syn-received"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the stateful context of one logical connection. It is owned by
// exactly one connection's goroutines; only State is read across goroutines.
type Session struct {
	ID        string
	Addr      string
	ClientID  string
	Params    Params
	CreatedAt time.Time

	mu    sync.Mutex
	state State
}

// New creates a session in the SynReceived state with a fresh unique id.
func New(addr string, params Params) *Session {
	return NewWithID(uuid.NewString(), addr, params)
}

// NewWithID creates a session under an id minted elsewhere, e.g. during the
// handshake before the session object exists.
func NewWithID(id, addr string, params Params) *Session {
	return &Session{
		ID:        id,
		Addr:      addr,
		Params:    params,
		CreatedAt: time.Now(),
		state:     StateSynReceived,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
