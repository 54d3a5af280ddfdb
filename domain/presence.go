package domain

import (
	"time"

	"github.com/google/uuid"
)

// RosterEntry is one line of the global user list shown to clients.
type RosterEntry struct {
	Username Identity
	Online   bool
	LastSeen *time.Time
}

// PresenceRecord is a snapshot of one identity's live connections.
// Invariant: Online == (len(Connections) > 0). LastSeen is stamped on
// the transition to zero connections and never cleared while online.
type PresenceRecord struct {
	Identity    Identity
	Connections []uuid.UUID
	Online      bool
	LastSeen    *time.Time
}
