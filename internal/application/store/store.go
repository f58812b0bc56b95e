// Package store persists Application aggregates.
//
// Stores are interface-driven so services stay testable against the in-memory
// implementation while production runs on PostgreSQL. Writes are optimistic:
// Update compares the aggregate's Version against the stored one and returns
// sentinel.ErrVersionConflict on a stale write, incrementing the version on
// success.
package store

import (
	"context"

	"terrier/internal/application/models"
	"terrier/pkg/domain"
)

type Store interface {
	// Create inserts a new application. Returns sentinel.ErrConflict when the
	// ID already exists.
	Create(ctx context.Context, app *models.Application) error

	// FindByID returns the application or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error)

	// Update writes the aggregate if app.Version still matches the stored
	// version, then increments it. Returns sentinel.ErrVersionConflict on a
	// stale write and sentinel.ErrNotFound for an unknown ID.
	Update(ctx context.Context, app *models.Application) error

	// ListByApplicant returns all applications filed by the given actor,
	// newest first.
	ListByApplicant(ctx context.Context, applicant domain.ActorRef) ([]*models.Application, error)
}
