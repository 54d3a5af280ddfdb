//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	apperrors "whisper/errors"

	"whisper/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	messagePrefix = "msg:"
	messageSeqKey = "seq:message"

	// DefaultHistoryLimit caps a history replay when the caller does not
	// ask for a specific window.
	DefaultHistoryLimit = 100

	seqBandwidth = 64
)

// MessageRepository persists private messages in BadgerDB.
//
// The key is formatted as "msg:{room}:{timestamp_padded}:{id_padded}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order equals time order).
//  2. Break ties between messages persisted in the same nanosecond with
//     the strictly increasing message ID, so order within a room always
//     matches assignment order.
type MessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
	now func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSeqKey), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message id sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log, now: time.Now}, nil
}

// Close releases the unused part of the ID sequence band.
func (r *MessageRepository) Close() error {
	return r.seq.Release()
}

// diskMessage is the stored representation of a domain.Message.
type diskMessage struct {
	ID   uint64    `json:"id"`
	From string    `json:"from"`
	To   string    `json:"to"`
	Text string    `json:"text"`
	Room string    `json:"room"`
	At   time.Time `json:"at"`
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%020d", messagePrefix, m.Room, m.At.UnixNano(), m.ID))
}

// Save persists one message atomically, assigning it a strictly
// increasing ID and a creation timestamp. The write is bounded by the
// context deadline: a store that stalls or fails surfaces as
// errors.ErrPersistence instead of hanging the calling session.
func (r *MessageRepository) Save(ctx context.Context, from, to domain.Identity, text string) (domain.Message, error) {
	id, err := r.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}

	msg := domain.Message{
		ID:   id,
		From: from,
		To:   to,
		Text: text,
		Room: domain.RoomKey(from, to),
		At:   r.now().UTC(),
	}
	value, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.db.Update(func(txn *badger.Txn) error {
			return txn.Set(messageKey(msg), value)
		})
	}()
	select {
	case err = <-done:
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
		}
	case <-ctx.Done():
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, ctx.Err())
	}
	return msg, nil
}

// History returns up to limit messages of the (a, b) conversation in
// ascending creation order. Thanks to the padded timestamp in the key a
// plain prefix scan is already sorted. Each call is an independent,
// complete read; an unknown room yields an empty slice, not an error.
func (r *MessageRepository) History(ctx context.Context, a, b domain.Identity, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	prefix := []byte(messagePrefix + domain.RoomKey(a, b) + ":")

	var disk []diskMessage
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(disk) == limit {
				break
			}
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			disk = append(disk, dm)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return toMessages(disk), nil
}

// UnreadCounts scans messages addressed to the given identity and counts
// the ones newer than since, grouped by sender. This is a full scan of
// the message keyspace; acceptable for the volumes this store is sized
// for, revisit with a per-recipient index if that changes.
func (r *MessageRepository) UnreadCounts(ctx context.Context, to domain.Identity, since time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	prefix := []byte(messagePrefix)

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			if dm.To == string(to) && !dm.At.Before(since) {
				counts[dm.From]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return counts, nil
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:   m.ID,
		From: string(m.From),
		To:   string(m.To),
		Text: m.Text,
		Room: m.Room,
		At:   m.At,
	}
}

func toMessages(disk []diskMessage) []domain.Message {
	return lo.Map(disk, func(dm diskMessage, _ int) domain.Message {
		return domain.Message{
			ID:   dm.ID,
			From: domain.Identity(dm.From),
			To:   domain.Identity(dm.To),
			Text: dm.Text,
			Room: dm.Room,
			At:   dm.At,
		}
	})
}
