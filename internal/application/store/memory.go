package store

import (
	"context"
	"sort"
	"sync"

	"terrier/internal/application/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
)

// InMemory is the development and unit-test store. It mirrors the Postgres
// semantics, including version-checked writes, so services behave identically
// against either implementation.
type InMemory struct {
	mu   sync.RWMutex
	apps map[domain.ApplicationID]*models.Application
}

func NewInMemory() *InMemory {
	return &InMemory{apps: make(map[domain.ApplicationID]*models.Application)}
}

func (s *InMemory) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return sentinel.ErrConflict
	}
	s.apps[app.ID] = clone(app)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(app), nil
}

func (s *InMemory) Update(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[app.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != app.Version {
		return sentinel.ErrVersionConflict
	}
	next := clone(app)
	next.Version++
	s.apps[app.ID] = next
	app.Version = next.Version
	return nil
}

func (s *InMemory) ListByApplicant(_ context.Context, applicant domain.ActorRef) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.apps {
		if app.ApplicantRef == applicant {
			out = append(out, clone(app))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// clone deep-copies the aggregate so callers never alias store-owned state.
func clone(app *models.Application) *models.Application {
	cp := *app
	cp.Approvals = append([]models.Approval(nil), app.Approvals...)
	cp.Draft.DocumentRefs = append([]string(nil), app.Draft.DocumentRefs...)
	return &cp
}
