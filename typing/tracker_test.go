package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets the tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTracker_SetThenRead(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	tracker := NewTracker(3*time.Second, clock.Now)

	tracker.Set("alice", "bob")

	req.True(tracker.IsTyping("alice", "bob"))
	// The flag is directional and per-pair
	req.False(tracker.IsTyping("bob", "alice"))
	req.False(tracker.IsTyping("alice", "carol"))
}

func TestTracker_FlagExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	tracker := NewTracker(3*time.Second, clock.Now)

	tracker.Set("alice", "bob")
	clock.Advance(3100 * time.Millisecond)

	req.False(tracker.IsTyping("alice", "bob"))
}

func TestTracker_ClearIsImmediate(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	tracker := NewTracker(3*time.Second, clock.Now)

	tracker.Set("alice", "bob")
	tracker.Clear("alice", "bob")

	req.False(tracker.IsTyping("alice", "bob"))
}

func TestTracker_SetRefreshesDeadline(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	tracker := NewTracker(3*time.Second, clock.Now)

	tracker.Set("alice", "bob")
	clock.Advance(2 * time.Second)
	tracker.Set("alice", "bob")
	clock.Advance(2 * time.Second)

	// 4s after the first Set, but only 2s after the refresh
	req.True(tracker.IsTyping("alice", "bob"))
}

func TestTracker_ClearFromDropsAllOutgoingFlags(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	tracker := NewTracker(3*time.Second, clock.Now)

	tracker.Set("alice", "bob")
	tracker.Set("alice", "carol")
	tracker.Set("bob", "alice")

	tracker.ClearFrom("alice")

	req.False(tracker.IsTyping("alice", "bob"))
	req.False(tracker.IsTyping("alice", "carol"))
	req.True(tracker.IsTyping("bob", "alice"))
}

func TestTracker_SweepEvictsOnlyExpired(t *testing.T) {
	req := require.New(t)
	clock := newFakeClock()
	tracker := NewTracker(3*time.Second, clock.Now)

	tracker.Set("alice", "bob")
	clock.Advance(2 * time.Second)
	tracker.Set("carol", "bob")
	clock.Advance(2 * time.Second)

	// alice's flag is 4s old, carol's 2s old
	req.Equal(1, tracker.Sweep())
	req.False(tracker.IsTyping("alice", "bob"))
	req.True(tracker.IsTyping("carol", "bob"))
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker(3*time.Second, time.Now)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Set("alice", "bob")
			tracker.IsTyping("alice", "bob")
			tracker.Sweep()
			tracker.Clear("alice", "bob")
		}()
	}
	wg.Wait()

	req.False(tracker.IsTyping("alice", "bob"))
}
