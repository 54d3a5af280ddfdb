//go:generate go run go.uber.org/mock/mockgen -source=roster.go -destination=../mocks/mock_roster_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	apperrors "whisper/errors"

	"whisper/domain"

	"github.com/dgraph-io/badger/v4"
)

const userPrefix = "user:"

// RosterRepository persists the durable half of a presence record:
// which identities have ever joined and when they were last seen. Live
// connection sets are volatile and rebuilt from active connections, so
// only this slim record survives a restart.
type RosterRepository struct {
	db *badger.DB
}

func NewRosterRepository(db *badger.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

type diskUser struct {
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen"`
}

// Touch records that the identity was last seen at the given time,
// creating the record on first sight.
func (r *RosterRepository) Touch(ctx context.Context, identity domain.Identity, lastSeen time.Time) error {
	value, err := json.Marshal(diskUser{Username: string(identity), LastSeen: lastSeen})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	done := make(chan error, 1)
	go func() {
		done <- r.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(userPrefix+string(identity)), value)
		})
	}()
	select {
	case err = <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, ctx.Err())
	}
}

// All loads every known identity with its stored last-seen timestamp,
// used to seed the presence registry at startup.
func (r *RosterRepository) All(ctx context.Context) (map[domain.Identity]time.Time, error) {
	known := make(map[domain.Identity]time.Time)
	prefix := []byte(userPrefix)

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var du diskUser
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &du)
			})
			if err != nil {
				return err
			}
			known[domain.Identity(du.Username)] = du.LastSeen
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return known, nil
}
