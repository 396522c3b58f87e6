package escalation

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
	mu     sync.Mutex
	events map[domain.EventID]*Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[domain.EventID]*Event)}
}

func (s *MemoryStore) Create(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.events {
		if existing.Fingerprint == e.Fingerprint && !existing.Status.Terminal() {
			return sentinel.ErrConflict
		}
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.EventID) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) FindActiveByFingerprint(_ context.Context, fingerprint string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.Fingerprint == fingerprint && !e.Status.Terminal() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) Update(_ context.Context, e *Event, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[e.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	cp := *e
	cp.Version = expectedVersion + 1
	s.events[e.ID] = &cp
	e.Version = cp.Version
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context, advocateID string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Event
	for _, e := range s.events {
		if e.AdvocateID == advocateID && !e.Status.Terminal() {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Event
	for _, e := range s.events {
		if !e.Status.Terminal() && e.CodeExpired(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
