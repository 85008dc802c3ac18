package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"mppchs/internal/beneficiary/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/sentinel"
)

// InMemoryStore is a process-local beneficiary store for development and tests.
type InMemoryStore struct {
	mu            sync.RWMutex
	beneficiaries map[id.BeneficiaryID]models.Beneficiary
	dependents    map[id.DependentID]models.Dependent
	nextBenID     id.BeneficiaryID
	nextDepID     id.DependentID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		beneficiaries: make(map[id.BeneficiaryID]models.Beneficiary),
		dependents:    make(map[id.DependentID]models.Dependent),
	}
}

func (s *InMemoryStore) Create(_ context.Context, b *models.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID.IsNil() {
		s.nextBenID++
		b.ID = s.nextBenID
	} else if _, exists := s.beneficiaries[b.ID]; exists {
		return fmt.Errorf("beneficiary %s: %w", b.ID, sentinel.ErrConflict)
	}
	if b.ID > s.nextBenID {
		s.nextBenID = b.ID
	}
	s.beneficiaries[b.ID] = *b
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.beneficiaries[beneficiaryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &b, nil
}

// Update writes profile fields. The change request summary is left untouched.
func (s *InMemoryStore) Update(_ context.Context, b *models.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.beneficiaries[b.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := *b
	updated.Summary = existing.Summary
	updated.CreatedAt = existing.CreatedAt
	s.beneficiaries[b.ID] = updated
	return nil
}

func (s *InMemoryStore) UpdateSummary(_ context.Context, beneficiaryID id.BeneficiaryID, summary models.ChangeRequestSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.beneficiaries[beneficiaryID]
	if !ok {
		return sentinel.ErrNotFound
	}
	b.Summary = summary
	s.beneficiaries[beneficiaryID] = b
	return nil
}

func (s *InMemoryStore) ListDependents(_ context.Context, beneficiaryID id.BeneficiaryID, activeOnly bool) ([]*models.Dependent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Dependent
	for _, d := range s.dependents {
		if d.BeneficiaryID != beneficiaryID || (activeOnly && !d.IsActive) {
			continue
		}
		dep := d
		out = append(out, &dep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) FindDependent(_ context.Context, dependentID id.DependentID) (*models.Dependent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dependents[dependentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &d, nil
}

func (s *InMemoryStore) InsertDependent(_ context.Context, d *models.Dependent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.beneficiaries[d.BeneficiaryID]; !ok {
		return fmt.Errorf("beneficiary %s: %w", d.BeneficiaryID, sentinel.ErrNotFound)
	}
	s.nextDepID++
	d.ID = s.nextDepID
	s.dependents[d.ID] = *d
	return nil
}

func (s *InMemoryStore) UpdateDependent(_ context.Context, d *models.Dependent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dependents[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.dependents[d.ID] = *d
	return nil
}

// Shortlist returns live rows whose masked identifier equals masked.
// Inactive dependents are not live and never match.
func (s *InMemoryStore) Shortlist(_ context.Context, kind models.IdentifierKind, masked string) ([]models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Candidate
	for _, b := range s.beneficiaries {
		sealed := b.Aadhaar
		if kind == models.TaxID {
			sealed = b.PAN
		}
		if !sealed.IsZero() && sealed.Masked == masked {
			out = append(out, models.Candidate{BeneficiaryID: b.ID, Ciphertext: sealed.Ciphertext})
		}
	}
	if kind == models.NationalID {
		for _, d := range s.dependents {
			if d.IsActive && !d.Aadhaar.IsZero() && d.Aadhaar.Masked == masked {
				out = append(out, models.Candidate{BeneficiaryID: d.BeneficiaryID, DependentID: d.ID, Ciphertext: d.Aadhaar.Ciphertext})
			}
		}
	}
	return out, nil
}

// Checkpoint captures the store and returns a function that restores it.
func (s *InMemoryStore) Checkpoint() func() {
	s.mu.RLock()
	bens := maps.Clone(s.beneficiaries)
	deps := maps.Clone(s.dependents)
	nextBen, nextDep := s.nextBenID, s.nextDepID
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.beneficiaries = bens
		s.dependents = deps
		s.nextBenID, s.nextDepID = nextBen, nextDep
	}
}
