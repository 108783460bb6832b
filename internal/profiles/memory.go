package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
)

// MemoryRepository is an in-memory Repository used when no database is configured and in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*models.Profile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.Profile)}
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) Insert(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.store[p.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	now := time.Now().UTC()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.store[p.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Len returns the number of stored profiles.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
