package sessions

import (
	"context"
	"sync"
)

// MemoryRepository keeps sessions for the process lifetime only.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: map[string]*Session{}}
}

func (m *MemoryRepository) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.TerminalKey] = &cp
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, terminalKey string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[terminalKey]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, terminalKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, terminalKey)
	return nil
}
