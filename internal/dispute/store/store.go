// Package store persists Dispute and Case aggregates. The at-most-one-active
// dispute invariant lives here as a uniqueness constraint so it holds under
// concurrent raise attempts, not just under application-level checks.
package store

import (
	"context"

	"terrier/internal/dispute/models"
	"terrier/pkg/domain"
)

type DisputeStore interface {
	// Create inserts a new dispute. Returns sentinel.ErrConflict when the ID
	// exists or when the property already has an active dispute.
	Create(ctx context.Context, dispute *models.Dispute) error

	// FindByID returns the dispute or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id domain.DisputeID) (*models.Dispute, error)

	// FindActiveByProperty returns the open or in-court dispute for a
	// property, or sentinel.ErrNotFound.
	FindActiveByProperty(ctx context.Context, propertyID domain.PropertyID) (*models.Dispute, error)

	// Update writes the aggregate under the optimistic-concurrency contract
	// shared with the other stores.
	Update(ctx context.Context, dispute *models.Dispute) error

	// ListByProperty returns all disputes ever raised against a property,
	// newest first.
	ListByProperty(ctx context.Context, propertyID domain.PropertyID) ([]*models.Dispute, error)
}

type CaseStore interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, id domain.CaseID) (*models.Case, error)
	Update(ctx context.Context, c *models.Case) error
}
