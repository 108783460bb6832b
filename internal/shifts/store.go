package shifts

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrShiftAlreadyOpen = errors.New("a shift is already open")
	ErrNoOpenShift      = errors.New("no open shift")
	ErrNotFound         = errors.New("shift not found")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrOperatorRequired = errors.New("operator name required")
)

// Store persists shifts and reads the transactions linked to them.
type Store interface {
	// Insert creates an open shift; ErrShiftAlreadyOpen when another one is open.
	Insert(ctx context.Context, s *Shift) error
	// FindOpen returns the open shift or nil when there is none.
	FindOpen(ctx context.Context) (*Shift, error)
	Get(ctx context.Context, id string) (*Shift, error)
	// CloseIfOpen applies c only while the shift is still open and returns the
	// closed row. ErrNoOpenShift when the shift was already closed.
	CloseIfOpen(ctx context.Context, id string, c Closing) (*Shift, error)
	Transactions(ctx context.Context, shiftID string) ([]Transaction, error)
	AddTransaction(ctx context.Context, tx *Transaction) error
}

// MemoryStore keeps shifts in process memory; used when no database is configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	shifts map[string]*Shift
	txs    []Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shifts: map[string]*Shift{}}
}

func (m *MemoryStore) Insert(ctx context.Context, s *Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.shifts {
		if existing.Status == StatusOpen {
			return ErrShiftAlreadyOpen
		}
	}
	m.shifts[s.ID] = cloneShift(s)
	return nil
}

func (m *MemoryStore) FindOpen(ctx context.Context) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shifts {
		if s.Status == StatusOpen {
			return cloneShift(s), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneShift(s), nil
}

func (m *MemoryStore) CloseIfOpen(ctx context.Context, id string, c Closing) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok || s.Status != StatusOpen {
		return nil, ErrNoOpenShift
	}
	c.apply(s)
	return cloneShift(s), nil
}

func (m *MemoryStore) Transactions(ctx context.Context, shiftID string) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, tx := range m.txs {
		if tx.ShiftID != nil && *tx.ShiftID == shiftID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AddTransaction(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, *tx)
	return nil
}
