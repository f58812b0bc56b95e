// Package property exposes the title registry's certified records and the
// ownership-transfer operation on them.
package property

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"terrier/internal/audit"
	"terrier/internal/ledger"
	"terrier/internal/platform/metrics"
	"terrier/internal/property/models"
	"terrier/internal/property/store"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/requestcontext"

	dErrors "terrier/pkg/domain-errors"
)

// Anchor is the slice of the ledger gateway transfers need.
type Anchor interface {
	Certify(ctx context.Context, key string, payload ledger.Payload) (ledger.Record, error)
	Release(ctx context.Context, key string)
}

type Service struct {
	properties store.Store
	anchor     Anchor
	audit      *audit.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewService(properties store.Store, anchor Anchor, auditPub *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		properties: properties,
		anchor:     anchor,
		audit:      auditPub,
		logger:     logger,
		metrics:    m,
	}
}

// Get returns a property by ID.
func (s *Service) Get(ctx context.Context, id domain.PropertyID) (*models.Property, error) {
	property, err := s.properties.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	return property, nil
}

// ListByOwner returns the properties currently held by an owner.
func (s *Service) ListByOwner(ctx context.Context, owner domain.ActorRef) ([]*models.Property, error) {
	properties, err := s.properties.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list properties")
	}
	return properties, nil
}

// TransferParams carries an ownership change request.
type TransferParams struct {
	PropertyID domain.PropertyID
	NewOwner   domain.ActorRef
	SalePrice  int64
}

// Transfer moves a title to a new owner, anchoring the change on the ledger.
// A disputed property fails fast before anything touches the ledger, and the
// frozen check is repeated immediately before the ledger write so a dispute
// raised mid-flight still wins.
func (s *Service) Transfer(ctx context.Context, params TransferParams) (*models.Property, error) {
	if params.NewOwner.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "new owner is required")
	}

	property, err := s.Get(ctx, params.PropertyID)
	if err != nil {
		return nil, err
	}
	if err := property.CanTransfer(); err != nil {
		s.metrics.IncTransfers("frozen")
		return nil, err
	}
	// Only the current owner may move their own title; registrars act on
	// behalf of the registry.
	if requestcontext.Role(ctx) != domain.RoleRegistrar && requestcontext.Actor(ctx) != property.OwnerRef {
		s.metrics.IncTransfers("forbidden")
		return nil, dErrors.New(dErrors.CodeForbidden, "only the current owner or a registrar may transfer a title")
	}
	if property.OwnerRef == params.NewOwner {
		return nil, dErrors.New(dErrors.CodeValidation, "property already belongs to that owner")
	}

	newValue := params.SalePrice
	if newValue <= 0 {
		newValue = property.Value
	}
	hash := models.ContentHash(params.NewOwner, property.Address, property.AreaSqft, newValue)

	// Re-read right before the ledger write: the dispute machine always
	// wins over an in-flight transfer.
	fresh, err := s.Get(ctx, params.PropertyID)
	if err != nil {
		return nil, err
	}
	if err := fresh.CanTransfer(); err != nil {
		s.metrics.IncTransfers("frozen")
		return nil, err
	}

	key := fmt.Sprintf("transfer:%s:%d", params.PropertyID, fresh.Version)
	record, err := s.anchor.Certify(ctx, key, ledger.Payload{
		Kind:        ledger.KindTransfer,
		PropertyID:  params.PropertyID.String(),
		OwnerRef:    params.NewOwner.String(),
		ContentHash: hash,
		RecordedAt:  requestcontext.Now(ctx),
	})
	if err != nil {
		s.metrics.IncTransfers("ledger_error")
		return nil, err
	}

	fresh.ApplyTransfer(params.NewOwner, newValue, hash, models.LedgerTx{
		Hash:     record.TxHash,
		BlockRef: record.BlockRef,
	}, requestcontext.Now(ctx))

	if err := s.properties.Update(ctx, fresh); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			s.metrics.IncTransfers("conflict")
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "property changed concurrently, re-read and retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist transfer")
	}
	s.anchor.Release(ctx, key)

	s.metrics.IncTransfers("success")
	s.logger.InfoContext(ctx, "property transferred",
		"property_id", params.PropertyID, "new_owner", params.NewOwner, "tx_hash", record.TxHash)
	s.emitTransferred(ctx, fresh, record.TxHash)
	return fresh, nil
}

func (s *Service) emitTransferred(ctx context.Context, property *models.Property, txHash string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Entry{
		ActorRef:    requestcontext.Actor(ctx),
		Action:      audit.ActionPropertyTransferred,
		SubjectRef:  property.PropertyID.String(),
		Timestamp:   requestcontext.Now(ctx),
		LedgerTxRef: txHash,
		Detail:      "owner " + property.OwnerRef.String(),
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit transfer audit entry", "error", err)
	}
}
