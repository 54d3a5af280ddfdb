package repositories

import (
	"context"
	"testing"
	"time"
	"whisper/domain"

	"github.com/stretchr/testify/require"
)

func TestRosterRepository_TouchAndAll(t *testing.T) {
	req := require.New(t)
	repository := NewRosterRepository(openTestDB(t))
	ctx := context.Background()

	aliceSeen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	bobSeen := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	req.NoError(repository.Touch(ctx, "alice", aliceSeen))
	req.NoError(repository.Touch(ctx, "bob", bobSeen))

	known, err := repository.All(ctx)
	req.NoError(err)
	req.Equal(map[domain.Identity]time.Time{
		"alice": aliceSeen,
		"bob":   bobSeen,
	}, known)
}

func TestRosterRepository_TouchOverwritesLastSeen(t *testing.T) {
	req := require.New(t)
	repository := NewRosterRepository(openTestDB(t))
	ctx := context.Background()

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)
	req.NoError(repository.Touch(ctx, "alice", first))
	req.NoError(repository.Touch(ctx, "alice", second))

	known, err := repository.All(ctx)
	req.NoError(err)
	req.Equal(second, known["alice"])
}

func TestRosterRepository_EmptyStore(t *testing.T) {
	req := require.New(t)
	repository := NewRosterRepository(openTestDB(t))

	known, err := repository.All(context.Background())
	req.NoError(err)
	req.Empty(known)
}
