package telemetry

import (
	"context"
	"sync"
)

// MemorySink keeps flushed events in memory. Used when no database is configured and in tests.
type MemorySink struct {
	mu      sync.Mutex
	batches [][]Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) WriteBatch(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Event(nil), events...))
	return nil
}

// Batches returns a copy of every batch written so far, in order.
func (m *MemorySink) Batches() [][]Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Event, len(m.batches))
	copy(out, m.batches)
	return out
}

// Events returns all written events flattened in write order.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}
