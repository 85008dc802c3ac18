package memory

import (
	"context"
	"slices"
	"sync"

	id "mppchs/pkg/domain"
	audit "mppchs/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByChangeRequest returns entries for one request in append order.
func (s *InMemoryStore) ListByChangeRequest(_ context.Context, changeRequestID id.ChangeRequestID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.ChangeRequestID == changeRequestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every entry in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events), nil
}

// Checkpoint captures the current log and returns a function that restores
// it. Used by the in-memory transaction to roll back appends.
func (s *InMemoryStore) Checkpoint() func() {
	s.mu.RLock()
	n := len(s.events)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if n < len(s.events) {
			s.events = s.events[:n]
		}
	}
}
