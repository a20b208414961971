package orchestration

import (
	"sync"
	"time"

	"github.com/draftforge/propeller/internal/domain/pipeline"
)

// DefaultActivityCapacity bounds the diagnostic trail kept per session.
const DefaultActivityCapacity = 10

// ActivityEntry is one immutable, timestamped diagnostic line.
type ActivityEntry struct {
	Timestamp time.Time
	Message   string
}

// ActivityLog keeps a bounded, newest-first trail of pipeline activity.
// It is diagnostic only and plays no correctness role. The log is written
// from the orchestrator's update loop and read by consumers, so access is
// guarded internally.
type ActivityLog struct {
	capacity     int
	timeProvider pipeline.TimeProvider

	mu      sync.RWMutex
	entries []ActivityEntry
}

// NewActivityLog creates an ActivityLog holding at most capacity entries.
// A non-positive capacity falls back to DefaultActivityCapacity.
func NewActivityLog(capacity int, timeProvider pipeline.TimeProvider) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &ActivityLog{
		capacity:     capacity,
		timeProvider: timeProvider,
		entries:      make([]ActivityEntry, 0, capacity),
	}
}

// Append prepends a timestamped entry, dropping the oldest entry once the
// log is at capacity.
func (l *ActivityLog) Append(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := ActivityEntry{Timestamp: l.timeProvider.Now(), Message: message}
	l.entries = append([]ActivityEntry{entry}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Entries returns a copy of the trail, newest first.
func (l *ActivityLog) Entries() []ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear drops every entry. Used on restart.
func (l *ActivityLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
