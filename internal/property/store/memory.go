package store

import (
	"context"
	"sort"
	"sync"

	"terrier/internal/property/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
)

type InMemory struct {
	mu         sync.RWMutex
	properties map[domain.PropertyID]*models.Property
}

func NewInMemory() *InMemory {
	return &InMemory{properties: make(map[domain.PropertyID]*models.Property)}
}

func (s *InMemory) Create(_ context.Context, property *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.properties[property.PropertyID]; exists {
		return sentinel.ErrConflict
	}
	s.properties[property.PropertyID] = clone(property)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.PropertyID) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	property, ok := s.properties[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(property), nil
}

func (s *InMemory) Update(_ context.Context, property *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.properties[property.PropertyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != property.Version {
		return sentinel.ErrVersionConflict
	}
	next := clone(property)
	next.Version++
	s.properties[property.PropertyID] = next
	property.Version = next.Version
	return nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner domain.ActorRef) ([]*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Property
	for _, property := range s.properties {
		if property.OwnerRef == owner {
			out = append(out, clone(property))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func clone(property *models.Property) *models.Property {
	cp := *property
	cp.DocumentRefs = append([]string(nil), property.DocumentRefs...)
	return &cp
}
