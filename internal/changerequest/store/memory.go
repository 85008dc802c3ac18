package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/sentinel"
)

// Counters are the recomputed per-beneficiary request totals.
type Counters struct {
	Submitted int
	Approved  int
}

// InMemoryStore is a process-local change request store for development
// and tests. It enforces the one-open-request rule the way the Postgres
// partial unique index does.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.ChangeRequestID]models.ChangeRequest
	items    map[id.ChangeRequestID][]models.ChangeItem
	logs     map[id.ChangeRequestID][]models.DependentChangeLogEntry
	nextReq  id.ChangeRequestID
	nextItem id.ChangeItemID
	nextLog  int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.ChangeRequestID]models.ChangeRequest),
		items:    make(map[id.ChangeRequestID][]models.ChangeItem),
		logs:     make(map[id.ChangeRequestID][]models.DependentChangeLogEntry),
	}
}

// cloneRequest copies cr deeply enough that callers cannot mutate stored
// dependent slices.
func cloneRequest(cr models.ChangeRequest) *models.ChangeRequest {
	cr.Before.Dependents = slices.Clone(cr.Before.Dependents)
	cr.After.Dependents = slices.Clone(cr.After.Dependents)
	return &cr
}

func (s *InMemoryStore) Create(_ context.Context, cr *models.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cr.Status.IsOpen() {
		for _, existing := range s.requests {
			if existing.BeneficiaryID == cr.BeneficiaryID && existing.Status.IsOpen() {
				return fmt.Errorf("beneficiary %s already has an open request: %w", cr.BeneficiaryID, sentinel.ErrConflict)
			}
		}
	}
	s.nextReq++
	cr.ID = s.nextReq
	s.requests[cr.ID] = *cloneRequest(*cr)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, cr *models.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[cr.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[cr.ID] = *cloneRequest(*cr)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.ChangeRequestID) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cr, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(cr), nil
}

// FindByIDForUpdate is FindByID; the in-memory transaction already
// serializes writers.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, requestID id.ChangeRequestID) (*models.ChangeRequest, error) {
	return s.FindByID(ctx, requestID)
}

func (s *InMemoryStore) FindActive(_ context.Context, beneficiaryID id.BeneficiaryID) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cr := range s.requests {
		if cr.BeneficiaryID == beneficiaryID && cr.Status.IsOpen() {
			return cloneRequest(cr), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByBeneficiary(_ context.Context, beneficiaryID id.BeneficiaryID) ([]*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ChangeRequest
	for _, cr := range s.requests {
		if cr.BeneficiaryID == beneficiaryID {
			out = append(out, cloneRequest(cr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListOpen(_ context.Context, statuses []models.Status, exclude id.BeneficiaryID) ([]*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ChangeRequest
	for _, cr := range s.requests {
		if cr.BeneficiaryID != exclude && slices.Contains(statuses, cr.Status) {
			out = append(out, cloneRequest(cr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) MaxSubmissionNo(_ context.Context, beneficiaryID id.BeneficiaryID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	highest := 0
	for _, cr := range s.requests {
		if cr.BeneficiaryID == beneficiaryID {
			highest = max(highest, cr.SubmissionNo)
		}
	}
	return highest, nil
}

func (s *InMemoryStore) Counters(_ context.Context, beneficiaryID id.BeneficiaryID) (Counters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Counters
	for _, cr := range s.requests {
		if cr.BeneficiaryID != beneficiaryID {
			continue
		}
		if cr.RequestedAt != nil {
			c.Submitted++
		}
		if cr.Status == models.StatusApproved {
			c.Approved++
		}
	}
	return c, nil
}

func (s *InMemoryStore) ReplaceItems(_ context.Context, requestID id.ChangeRequestID, items []models.ChangeItem) ([]models.ChangeItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChangeItem, len(items))
	for i, it := range items {
		s.nextItem++
		it.ID = s.nextItem
		it.ChangeRequestID = requestID
		out[i] = it
	}
	s.items[requestID] = slices.Clone(out)
	return out, nil
}

func (s *InMemoryStore) ListItems(_ context.Context, requestID id.ChangeRequestID) ([]models.ChangeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items[requestID]), nil
}

func (s *InMemoryStore) FindItem(_ context.Context, requestID id.ChangeRequestID, itemID id.ChangeItemID) (*models.ChangeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items[requestID] {
		if it.ID == itemID {
			return &it, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdateItem(_ context.Context, item *models.ChangeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[item.ChangeRequestID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = *item
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryStore) ReplaceLogs(_ context.Context, requestID id.ChangeRequestID, entries []models.DependentChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DependentChangeLogEntry, len(entries))
	for i, e := range entries {
		s.nextLog++
		e.ID = s.nextLog
		e.ChangeRequestID = requestID
		out[i] = e
	}
	s.logs[requestID] = out
	return nil
}

func (s *InMemoryStore) ListLogs(_ context.Context, requestID id.ChangeRequestID) ([]models.DependentChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs[requestID]), nil
}

// Checkpoint captures the store and returns a function that restores it.
func (s *InMemoryStore) Checkpoint() func() {
	s.mu.RLock()
	requests := maps.Clone(s.requests)
	items := make(map[id.ChangeRequestID][]models.ChangeItem, len(s.items))
	for k, v := range s.items {
		items[k] = slices.Clone(v)
	}
	logs := maps.Clone(s.logs)
	nextReq, nextItem, nextLog := s.nextReq, s.nextItem, s.nextLog
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests, s.items, s.logs = requests, items, logs
		s.nextReq, s.nextItem, s.nextLog = nextReq, nextItem, nextLog
	}
}
