package orchestration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock provides a controllable time source for tests.
type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func TestActivityLogNewestFirstAndBounded(t *testing.T) {
	clock := newFakeClock()
	log := NewActivityLog(10, clock)

	for i := 0; i < 12; i++ {
		log.Append(fmt.Sprintf("entry %d", i))
		clock.Advance(time.Second)
	}

	entries := log.Entries()
	require.Len(t, entries, 10)
	assert.Equal(t, "entry 11", entries[0].Message)
	assert.Equal(t, "entry 2", entries[9].Message)

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.After(entries[i-1].Timestamp),
			"entries must be newest first")
	}
}

func TestActivityLogClear(t *testing.T) {
	log := NewActivityLog(5, newFakeClock())
	log.Append("one")
	log.Append("two")
	require.Len(t, log.Entries(), 2)

	log.Clear()
	assert.Empty(t, log.Entries())
}

func TestActivityLogDefaultCapacity(t *testing.T) {
	log := NewActivityLog(0, newFakeClock())
	for i := 0; i < DefaultActivityCapacity+3; i++ {
		log.Append("x")
	}
	assert.Len(t, log.Entries(), DefaultActivityCapacity)
}
