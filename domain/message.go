// Package domain contains core concepts of the messaging system.
// This file defines Message records and related rules.
// Messages are immutable once persisted.
package domain

import "time"

// Message is one persisted private message. ID is strictly increasing
// across the whole store; ordering within a room is by At, ties broken
// by ID (assignment order).
type Message struct {
	ID   uint64
	From Identity
	To   Identity
	Text string
	Room string
	At   time.Time
}
