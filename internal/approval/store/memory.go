package store

import (
	"context"
	"sync"

	"terrier/internal/approval"
	"terrier/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	settings approval.Settings
	saved    bool
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Load(_ context.Context) (approval.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return approval.Default(), nil
	}
	return cloneSettings(s.settings), nil
}

func (s *InMemory) Save(_ context.Context, settings approval.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := int64(0)
	if s.saved {
		current = s.settings.Version
	}
	if settings.Version != current {
		return sentinel.ErrVersionConflict
	}
	next := cloneSettings(settings)
	next.Version++
	s.settings = next
	s.saved = true
	return nil
}

func cloneSettings(in approval.Settings) approval.Settings {
	out := in
	out.RankSequence = append([]string(nil), in.RankSequence...)
	return out
}
