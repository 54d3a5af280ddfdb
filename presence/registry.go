// Package presence tracks which identities are online and through which
// connections. It is the only truly shared mutable state of the system.
package presence

import (
	"hash/fnv"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"whisper/contract"
	"whisper/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const shardCount = 32

// record holds the live state of one identity. Records are never
// deleted: an identity that loses its last connection stays in the
// registry as offline with a LastSeen timestamp.
type record struct {
	conns    map[uuid.UUID]contract.Connection
	lastSeen *time.Time
}

type shard struct {
	mu      sync.RWMutex
	records map[domain.Identity]*record
}

// Registry maps identity -> set of connections, with a reverse
// connection -> identity map for Unbind.
//
// Writes are serialized per identity via lock striping: identities hash
// to one of shardCount shards, so concurrent operations on disjoint
// identities proceed independently. The reverse map has its own lock
// and is only ever mutated while the owning identity's shard lock is
// held (shard lock first, then reverse lock), so the two maps cannot
// diverge.
type Registry struct {
	shards [shardCount]shard

	revMu  sync.RWMutex
	owners map[uuid.UUID]domain.Identity

	log *slog.Logger
	now func() time.Time
}

func NewRegistry(log *slog.Logger) *Registry {
	r := &Registry{
		owners: make(map[uuid.UUID]domain.Identity),
		log:    log.With(slog.String("component", "presence_registry")),
		now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i].records = make(map[domain.Identity]*record)
	}
	return r
}

func (r *Registry) shardFor(identity domain.Identity) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &r.shards[h.Sum32()%shardCount]
}

// Seed pre-populates the registry with previously-seen identities so the
// roster survives restarts. All seeded identities start offline.
func (r *Registry) Seed(known map[domain.Identity]time.Time) {
	for identity, lastSeen := range known {
		s := r.shardFor(identity)
		ts := lastSeen
		s.mu.Lock()
		if _, ok := s.records[identity]; !ok {
			s.records[identity] = &record{
				conns:    make(map[uuid.UUID]contract.Connection),
				lastSeen: &ts,
			}
		}
		s.mu.Unlock()
	}
}

// Bind idempotently adds conn to the identity's connection set, creating
// the record on first join. A bound identity is online by definition.
func (r *Registry) Bind(identity domain.Identity, conn contract.Connection) domain.PresenceRecord {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		rec = &record{conns: make(map[uuid.UUID]contract.Connection)}
		s.records[identity] = rec
	}
	rec.conns[conn.ID()] = conn

	r.revMu.Lock()
	r.owners[conn.ID()] = identity
	r.revMu.Unlock()

	r.log.Debug("connection bound",
		slog.String("identity", string(identity)),
		slog.String("connID", conn.ID().String()))
	return snapshot(identity, rec)
}

// Unbind removes the connection from whichever identity owns it. On the
// transition to zero connections the identity goes offline and LastSeen
// is stamped. Unbinding a connection that was never bound (or already
// unbound) is a no-op, not an error.
func (r *Registry) Unbind(connID uuid.UUID) (domain.Identity, bool) {
	r.revMu.RLock()
	identity, ok := r.owners[connID]
	r.revMu.RUnlock()
	if !ok {
		return "", false
	}

	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the shard lock: a concurrent Unbind may have won.
	r.revMu.Lock()
	if current, still := r.owners[connID]; !still || current != identity {
		r.revMu.Unlock()
		return "", false
	}
	delete(r.owners, connID)
	r.revMu.Unlock()

	rec := s.records[identity]
	delete(rec.conns, connID)
	if len(rec.conns) == 0 {
		ts := r.now().UTC()
		rec.lastSeen = &ts
		r.log.Debug("identity went offline", slog.String("identity", string(identity)))
	}
	return identity, true
}

// ConnectionsFor returns a snapshot of the identity's live connections;
// empty when the identity is unknown or offline.
func (r *Registry) ConnectionsFor(identity domain.Identity) []contract.Connection {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identity]
	if !ok {
		return nil
	}
	return lo.Values(rec.conns)
}

// Connections returns a snapshot of every live connection in the
// registry, for roster broadcasts.
func (r *Registry) Connections() []contract.Connection {
	var all []contract.Connection
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, rec := range s.records {
			all = append(all, lo.Values(rec.conns)...)
		}
		s.mu.RUnlock()
	}
	return all
}

// Record returns a point-in-time snapshot of one identity's presence.
func (r *Registry) Record(identity domain.Identity) (domain.PresenceRecord, bool) {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identity]
	if !ok {
		return domain.PresenceRecord{}, false
	}
	return snapshot(identity, rec), true
}

// Roster returns the full user list sorted by username.
func (r *Registry) Roster() []domain.RosterEntry {
	var entries []domain.RosterEntry
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for identity, rec := range s.records {
			entries = append(entries, domain.RosterEntry{
				Username: identity,
				Online:   len(rec.conns) > 0,
				LastSeen: rec.lastSeen,
			})
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(entries, func(a, b domain.RosterEntry) int {
		return strings.Compare(string(a.Username), string(b.Username))
	})
	return entries
}

func snapshot(identity domain.Identity, rec *record) domain.PresenceRecord {
	return domain.PresenceRecord{
		Identity:    identity,
		Connections: lo.Keys(rec.conns),
		Online:      len(rec.conns) > 0,
		LastSeen:    rec.lastSeen,
	}
}
