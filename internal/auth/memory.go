package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"abroadguide.org/internal/ids"
)

var _ IdentityStore = (*MemoryStore)(nil)

// MemoryStore is an in-process IdentityStore used for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Identity
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Identity),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) FindBySubject(_ context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, identity *Identity) (*Identity, error) {
	if identity == nil {
		return nil, ErrInvalidInput
	}
	if !identity.Role.Valid() {
		return nil, ErrInvalidRole
	}
	rec := *identity
	rec.Email = NormalizeEmail(rec.Email)
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		if _, taken := s.byEmail[rec.Email]; taken {
			return nil, ErrAlreadyExists
		}
		rec.ID = ids.NewAt(now)
		rec.CreatedAt = now
	} else {
		prev, ok := s.byID[rec.ID]
		if !ok {
			return nil, ErrNotFound
		}
		if prev.Email != rec.Email {
			if _, taken := s.byEmail[rec.Email]; taken {
				return nil, ErrAlreadyExists
			}
			delete(s.byEmail, prev.Email)
		}
		rec.CreatedAt = prev.CreatedAt
	}
	rec.UpdatedAt = now
	s.byID[rec.ID] = &rec
	s.byEmail[rec.Email] = rec.ID

	out := rec
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Identity, 0, len(s.byID))
	for _, rec := range s.byID {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
