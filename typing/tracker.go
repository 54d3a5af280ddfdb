// Package typing holds ephemeral, self-expiring typing flags. Flags are
// never persisted; correctness comes from lazy expiry checks, the
// background sweep exists for memory hygiene only.
package typing

import (
	"sync"
	"time"
	"whisper/domain"
)

// DefaultTTL is how long a typing flag stays live without a refresh.
// Server-enforced expiry is authoritative; any client-side debounce is
// advisory and independent.
const DefaultTTL = 3 * time.Second

type pair struct {
	from domain.Identity
	to   domain.Identity
}

// Tracker maps (sender, recipient) pairs to flag deadlines. Entries are
// independent per pair; a later Set supersedes an earlier one
// (last-writer-wins by expiry time).
type Tracker struct {
	mu    sync.RWMutex
	flags map[pair]time.Time
	ttl   time.Duration
	now   func() time.Time
}

func NewTracker(ttl time.Duration, now func() time.Time) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{flags: make(map[pair]time.Time), ttl: ttl, now: now}
}

// Set records or refreshes the typing flag for (from, to).
func (t *Tracker) Set(from, to domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flags[pair{from, to}] = t.now().Add(t.ttl)
}

// Clear removes the flag immediately.
func (t *Tracker) Clear(from, to domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flags, pair{from, to})
}

// ClearFrom removes every flag the given identity holds as sender, used
// when its last connection drops.
func (t *Tracker) ClearFrom(from domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for p := range t.flags {
		if p.from == from {
			delete(t.flags, p)
		}
	}
}

// IsTyping evaluates the flag lazily against the current time. An
// expired flag reads as false and is evicted on the spot.
func (t *Tracker) IsTyping(from, to domain.Identity) bool {
	p := pair{from, to}
	t.mu.RLock()
	deadline, ok := t.flags[p]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	if t.now().Before(deadline) {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check: a concurrent Set may have refreshed the flag.
	current, still := t.flags[p]
	if still && t.now().Before(current) {
		return true
	}
	if still {
		delete(t.flags, p)
	}
	return false
}

// Sweep evicts every expired flag and reports how many were removed.
func (t *Tracker) Sweep() int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	evicted := 0
	for p, deadline := range t.flags {
		if !now.Before(deadline) {
			delete(t.flags, p)
			evicted++
		}
	}
	return evicted
}
