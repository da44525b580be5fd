package audit

import (
	"context"
	"sync"
)

// MemoryRecorder keeps entries in memory. Used by the in-memory deployment
// mode and by tests that assert on the trail.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
	failErr error
}

// NewMemoryRecorder creates an empty in-memory recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends a copy of the entry
func (m *MemoryRecorder) Record(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, *entry)
	return nil
}

// FailWith makes every subsequent Record return err (nil restores normal behaviour)
func (m *MemoryRecorder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Entries returns a snapshot of recorded entries in insertion order
func (m *MemoryRecorder) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// For returns the entries about one target
func (m *MemoryRecorder) For(targetType TargetType, targetID string) []Entry {
	var out []Entry
	for _, e := range m.Entries() {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out
}

// Close is a no-op
func (m *MemoryRecorder) Close() error {
	return nil
}
