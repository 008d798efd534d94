package students

import (
	"context"
	"sort"
	"sync"
	"time"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps student records in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Student
	byNumber map[string]string
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Student),
		byNumber: make(map[string]string),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Student) (*Student, error) {
	rec := *s
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byNumber[rec.StudentNumber]; taken {
		return nil, auth.ErrAlreadyExists
	}
	rec.CreatedAt = m.now().UTC()
	rec.ID = ids.NewAt(rec.CreatedAt)
	rec.UpdatedAt = rec.CreatedAt
	m.byID[rec.ID] = &rec
	m.byNumber[rec.StudentNumber] = rec.ID
	out := rec
	return &out, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStore) Update(_ context.Context, s *Student) (*Student, error) {
	rec := *s
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.byID[rec.ID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if prev.StudentNumber != rec.StudentNumber {
		if _, taken := m.byNumber[rec.StudentNumber]; taken {
			return nil, auth.ErrAlreadyExists
		}
		delete(m.byNumber, prev.StudentNumber)
		m.byNumber[rec.StudentNumber] = rec.ID
	}
	rec.CreatedAt = prev.CreatedAt
	rec.UpdatedAt = m.now().UTC()
	m.byID[rec.ID] = &rec
	out := rec
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(m.byNumber, rec.StudentNumber)
	delete(m.byID, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Student, 0, len(m.byID))
	for _, rec := range m.byID {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
