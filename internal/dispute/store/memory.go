package store

import (
	"context"
	"sort"
	"sync"

	"terrier/internal/dispute/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
)

// InMemoryDisputes mirrors the Postgres semantics, including the partial
// uniqueness on active disputes per property.
type InMemoryDisputes struct {
	mu       sync.RWMutex
	disputes map[domain.DisputeID]*models.Dispute
}

func NewInMemoryDisputes() *InMemoryDisputes {
	return &InMemoryDisputes{disputes: make(map[domain.DisputeID]*models.Dispute)}
}

func (s *InMemoryDisputes) Create(_ context.Context, dispute *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.disputes[dispute.ID]; exists {
		return sentinel.ErrConflict
	}
	if dispute.IsActive() {
		for _, existing := range s.disputes {
			if existing.PropertyID == dispute.PropertyID && existing.IsActive() {
				return sentinel.ErrConflict
			}
		}
	}
	s.disputes[dispute.ID] = cloneDispute(dispute)
	return nil
}

func (s *InMemoryDisputes) FindByID(_ context.Context, id domain.DisputeID) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dispute, ok := s.disputes[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDispute(dispute), nil
}

func (s *InMemoryDisputes) FindActiveByProperty(_ context.Context, propertyID domain.PropertyID) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dispute := range s.disputes {
		if dispute.PropertyID == propertyID && dispute.IsActive() {
			return cloneDispute(dispute), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryDisputes) Update(_ context.Context, dispute *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.disputes[dispute.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != dispute.Version {
		return sentinel.ErrVersionConflict
	}
	next := cloneDispute(dispute)
	next.Version++
	s.disputes[dispute.ID] = next
	dispute.Version = next.Version
	return nil
}

func (s *InMemoryDisputes) ListByProperty(_ context.Context, propertyID domain.PropertyID) ([]*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Dispute
	for _, dispute := range s.disputes {
		if dispute.PropertyID == propertyID {
			out = append(out, cloneDispute(dispute))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneDispute(d *models.Dispute) *models.Dispute {
	cp := *d
	cp.Timeline = append([]models.TimelineEvent(nil), d.Timeline...)
	return &cp
}

type InMemoryCases struct {
	mu    sync.RWMutex
	cases map[domain.CaseID]*models.Case
}

func NewInMemoryCases() *InMemoryCases {
	return &InMemoryCases{cases: make(map[domain.CaseID]*models.Case)}
}

func (s *InMemoryCases) Create(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.cases[c.ID] = cloneCase(c)
	return nil
}

func (s *InMemoryCases) FindByID(_ context.Context, id domain.CaseID) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCase(c), nil
}

func (s *InMemoryCases) Update(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.cases[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != c.Version {
		return sentinel.ErrVersionConflict
	}
	next := cloneCase(c)
	next.Version++
	s.cases[c.ID] = next
	c.Version = next.Version
	return nil
}

func cloneCase(c *models.Case) *models.Case {
	cp := *c
	cp.Orders = append([]models.Order(nil), c.Orders...)
	cp.Hearings = append([]models.Hearing(nil), c.Hearings...)
	return &cp
}
