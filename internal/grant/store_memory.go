package grant

import (
	"context"
	"sort"
	"sync"
	"time"

	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[domain.GrantID]*Grant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[domain.GrantID]*Grant)}
}

func (s *MemoryStore) Create(_ context.Context, g *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[g.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *g
	s.grants[g.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.GrantID) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) ListBySenior(_ context.Context, seniorID string) ([]*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Grant
	for _, g := range s.grants {
		if g.SeniorID == seniorID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id domain.GrantID, revokedBy, reason string, at time.Time) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if g.Status == StatusActive {
		g.Status = StatusRevoked
		revokedAt := at
		g.RevokedAt = &revokedAt
		g.RevokedBy = revokedBy
		g.RevocationReason = reason
	}
	cp := *g
	return &cp, nil
}
