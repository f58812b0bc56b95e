// Package store persists Property aggregates with version-checked writes,
// matching the application store's optimistic-concurrency contract.
package store

import (
	"context"

	"terrier/internal/property/models"
	"terrier/pkg/domain"
)

type Store interface {
	// Create inserts a new property. Returns sentinel.ErrConflict when the
	// ID already exists.
	Create(ctx context.Context, property *models.Property) error

	// FindByID returns the property or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id domain.PropertyID) (*models.Property, error)

	// Update writes the aggregate if property.Version still matches the
	// stored version, then increments it. Returns sentinel.ErrVersionConflict
	// on a stale write and sentinel.ErrNotFound for an unknown ID.
	Update(ctx context.Context, property *models.Property) error

	// ListByOwner returns the properties held by an owner, newest first.
	ListByOwner(ctx context.Context, owner domain.ActorRef) ([]*models.Property, error)
}
