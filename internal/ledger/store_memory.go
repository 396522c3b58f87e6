package ledger

import (
	"context"
	"sync"

	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]*Entry
	byID   map[domain.EntryID]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains: make(map[string][]*Entry),
		byID:   make(map[domain.EntryID]*Entry),
	}
}

func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[e.ChainID]
	if e.Seq != uint64(len(chain))+1 {
		return sentinel.ErrConflict
	}
	cp := *e
	s.chains[e.ChainID] = append(chain, &cp)
	s.byID[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Head(_ context.Context, chainID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[chainID]
	if len(chain) == 0 {
		return nil, sentinel.ErrNotFound
	}
	cp := *chain[len(chain)-1]
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, chainID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[chainID]
	out := make([]*Entry, len(chain))
	for i, e := range chain {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.EntryID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Tamper mutates a stored entry in place. Test hook for integrity checks.
func (s *MemoryStore) Tamper(id domain.EntryID, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return false
	}
	mutate(e)
	return true
}
