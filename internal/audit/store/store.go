// Package store persists audit entries. Append-only: there is no update or
// delete surface by design of the audit trail.
package store

import (
	"context"

	"terrier/internal/audit"
)

type Store interface {
	Append(ctx context.Context, entry audit.Entry) error

	// ListBySubject returns the trail for one subject ref, oldest first.
	ListBySubject(ctx context.Context, subjectRef string) ([]audit.Entry, error)
}
