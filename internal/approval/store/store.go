// Package store persists the singleton approval policy.
package store

import (
	"context"

	"terrier/internal/approval"
)

type Store interface {
	// Load returns the current policy, or the default policy when none has
	// been saved yet.
	Load(ctx context.Context) (approval.Settings, error)

	// Save writes the policy if settings.Version matches the stored version,
	// then increments it. Returns sentinel.ErrVersionConflict on a stale
	// write.
	Save(ctx context.Context, settings approval.Settings) error
}
