package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/netdiag/internal/domain"
	"github.com/hamed0406/netdiag/internal/repo"
)

const defaultLimit = 50

// Store is a bounded in-memory run history. The oldest run is evicted once
// the limit is reached.
type Store struct {
	mu    sync.RWMutex
	limit int
	runs  []domain.Run // oldest first
	byID  map[string]int
}

func New(limit int) *Store {
	if limit < 1 {
		limit = defaultLimit
	}
	return &Store{
		limit: limit,
		runs:  make([]domain.Run, 0, limit),
		byID:  make(map[string]int, limit),
	}
}

func (m *Store) Add(ctx context.Context, run domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.byID[run.ID]; ok {
		m.runs[i] = run
		return nil
	}
	if len(m.runs) == m.limit {
		delete(m.byID, m.runs[0].ID)
		m.runs = append(m.runs[:0], m.runs[1:]...)
		for i, r := range m.runs {
			m.byID[r.ID] = i
		}
	}
	m.runs = append(m.runs, run)
	m.byID[run.ID] = len(m.runs) - 1
	return nil
}

func (m *Store) Get(ctx context.Context, id string) (domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return m.runs[i], nil
}

func (m *Store) List(ctx context.Context, limit int) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]domain.Run, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}
