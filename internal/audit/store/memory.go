package store

import (
	"context"
	"sync"

	"terrier/internal/audit"
)

type InMemory struct {
	mu      sync.RWMutex
	entries map[string][]audit.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string][]audit.Entry)}
}

func (s *InMemory) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.SubjectRef] = append(s.entries[entry.SubjectRef], entry)
	return nil
}

func (s *InMemory) ListBySubject(_ context.Context, subjectRef string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries[subjectRef]...), nil
}
