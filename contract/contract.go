//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"
	"whisper/domain"
	"whisper/domain/event"

	"github.com/google/uuid"
)

type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// Connection is one live transport session. A connection is owned by at
// most one identity at a time; one identity may own several connections
// (multi-tab, multi-device).
type Connection interface {
	EventSink
	ID() uuid.UUID
}

// IPresenceRegistry is the single source of truth for who is online and
// through which connections.
type IPresenceRegistry interface {
	Bind(identity domain.Identity, conn Connection) domain.PresenceRecord
	Unbind(connID uuid.UUID) (domain.Identity, bool)
	ConnectionsFor(identity domain.Identity) []Connection
	Connections() []Connection
	Record(identity domain.Identity) (domain.PresenceRecord, bool)
	Roster() []domain.RosterEntry
}

type IMessageRepository interface {
	Save(ctx context.Context, from, to domain.Identity, text string) (domain.Message, error)
	History(ctx context.Context, a, b domain.Identity, limit int) ([]domain.Message, error)
	UnreadCounts(ctx context.Context, to domain.Identity, since time.Time) (map[string]int, error)
}

// IRosterRepository persists the durable half of a presence record so
// known identities reappear (offline) after a restart. Live connection
// sets are volatile on purpose.
type IRosterRepository interface {
	Touch(ctx context.Context, identity domain.Identity, lastSeen time.Time) error
	All(ctx context.Context) (map[domain.Identity]time.Time, error)
}

type ITypingTracker interface {
	Set(from, to domain.Identity)
	Clear(from, to domain.Identity)
	IsTyping(from, to domain.Identity) bool
	ClearFrom(from domain.Identity)
}

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision purposes.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
