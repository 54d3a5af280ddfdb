// Package event defines the outbound events the coordinator emits to
// connections. Events are plain values; the transport decides how they
// are encoded on the wire.
package event

import (
	"time"
	"whisper/domain"
)

type Outbound interface {
	Name() string
}

// Roster carries the full, username-sorted user list. Sent to a single
// joining connection and broadcast to everyone on any presence change.
type Roster struct {
	Users []domain.RosterEntry
}

func (Roster) Name() string { return "user:list" }

// Message is one delivered private message, sent to every connection of
// the recipient and echoed to the sending connection as its only ack.
type Message struct {
	ID   uint64
	From domain.Identity
	To   domain.Identity
	Text string
	At   time.Time
}

func (Message) Name() string { return "private:message" }

// History replays a conversation to the requesting connection only.
type History struct {
	With     string
	Messages []Message
}

func (History) Name() string { return "message:history" }

// Typing and StopTyping fan out to the recipient's connections only.
type Typing struct {
	From domain.Identity
}

func (Typing) Name() string { return "typing" }

type StopTyping struct {
	From domain.Identity
}

func (StopTyping) Name() string { return "stopTyping" }

// Unread reports per-sender counts of messages newer than the requested
// cutoff, to the requesting connection only.
type Unread struct {
	Counts map[string]int
}

func (Unread) Name() string { return "message:unread" }

// Rejection reports a failed inbound event to the offending connection.
type Rejection struct {
	Reason string
}

func (Rejection) Name() string { return "error" }
