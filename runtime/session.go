package runtime

import (
	"sync"
	"whisper/contract"
	"whisper/domain"
)

// SessionState models the lifecycle of one connection:
// Unauthenticated -> Bound -> Closed. Closed is terminal.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Bound
	Closed
)

// Session binds one transport connection to a validated identity. The
// transport delivers inbound events for a single connection in order,
// but Disconnect can race with a handler, so state is guarded.
type Session struct {
	conn contract.Connection

	mu       sync.Mutex
	state    SessionState
	identity domain.Identity
}

func NewSession(conn contract.Connection) *Session {
	return &Session{conn: conn, state: Unauthenticated}
}

func (s *Session) Conn() contract.Connection { return s.conn }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound identity; empty while Unauthenticated.
func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// bind transitions Unauthenticated -> Bound. Reports false when the
// session already left Unauthenticated (double join, or closed).
func (s *Session) bind(identity domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unauthenticated {
		return false
	}
	s.state = Bound
	s.identity = identity
	return true
}

// close transitions to Closed. Reports false when already closed, which
// makes disconnect handling idempotent.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return false
	}
	s.state = Closed
	return true
}
