// Package certification turns approved applications into ledger-anchored
// Property records and answers public verification queries.
package certification

import (
	"context"
	"errors"
	"log/slog"

	appmodels "terrier/internal/application/models"
	appstore "terrier/internal/application/store"
	"terrier/internal/audit"
	"terrier/internal/ledger"
	"terrier/internal/platform/metrics"
	propmodels "terrier/internal/property/models"
	propstore "terrier/internal/property/store"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/requestcontext"

	dErrors "terrier/pkg/domain-errors"
)

// Gateway is the slice of the ledger gateway certification needs.
type Gateway interface {
	Certify(ctx context.Context, key string, payload ledger.Payload) (ledger.Record, error)
	Release(ctx context.Context, key string)
	Lookup(ctx context.Context, propertyID string) (ledger.Record, error)
}

type Service struct {
	applications appstore.Store
	properties   propstore.Store
	gateway      Gateway
	audit        *audit.Publisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func NewService(applications appstore.Store, properties propstore.Store, gateway Gateway, auditPub *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		applications: applications,
		properties:   properties,
		gateway:      gateway,
		audit:        auditPub,
		logger:       logger,
		metrics:      m,
	}
}

// Certify runs the certification saga for an application that has met
// quorum. The operation is idempotent on the application ID: a retry after a
// timeout resumes the reserved submission, and a call against an already
// certified application returns the existing property without touching the
// ledger. The property is only persisted together with its confirmed ledger
// reference; a ledger failure leaves no partial property behind.
func (s *Service) Certify(ctx context.Context, id domain.ApplicationID) (*propmodels.Property, error) {
	app, err := s.applications.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}

	// Already certified: idempotent success. Any reservation left by a crash
	// between the approved write and the release is cleaned up here.
	if app.Status == appmodels.StatusApproved && !app.PropertyID.IsZero() {
		s.gateway.Release(ctx, app.ID.String())
		return s.loadCertified(ctx, app.PropertyID)
	}

	if err := app.CanReserveCertification(); err != nil {
		s.metrics.IncCertifications("rejected")
		return nil, err
	}

	// A filing against an existing title fails fast while that title is
	// frozen: no reservation, no ledger submission.
	if app.Kind.RequiresExistingProperty() {
		target, err := s.properties.FindByID(ctx, app.Draft.PropertyID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
		}
		if err == nil {
			if frozenErr := target.CanTransfer(); frozenErr != nil {
				s.metrics.IncCertifications("frozen")
				return nil, frozenErr
			}
		}
	}

	propertyID, err := s.reserve(ctx, app)
	if err != nil {
		return nil, err
	}

	owner := app.ApplicantRef
	hash := propmodels.ContentHash(owner, app.Draft.Address, app.Draft.AreaSqft, app.Draft.DeclaredValue)

	record, err := s.gateway.Certify(ctx, app.ID.String(), ledger.Payload{
		Kind:        ledger.KindCertify,
		PropertyID:  propertyID.String(),
		OwnerRef:    owner.String(),
		ContentHash: hash,
		RecordedAt:  requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, s.handleLedgerFailure(ctx, app, err)
	}

	property, err := s.persistProperty(ctx, app, propertyID, owner, hash, record)
	if err != nil {
		return nil, err
	}

	app.ApplyCertified(propertyID, record.TxHash, requestcontext.Now(ctx))
	if err := s.applications.Update(ctx, app); err != nil {
		// Reservation deliberately kept: the retry must converge on the
		// confirmed submission, not write a second one.
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "application changed concurrently, re-read and retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark application approved")
	}
	s.gateway.Release(ctx, app.ID.String())

	s.metrics.IncCertifications("success")
	s.logger.InfoContext(ctx, "certificate generated",
		"application_id", app.ID, "property_id", propertyID, "tx_hash", record.TxHash)
	s.emitCertified(ctx, propertyID, record.TxHash)
	return property, nil
}

// reserve pins the property ID under the certification reservation. An
// existing in-progress reservation is resumed with its pinned ID.
func (s *Service) reserve(ctx context.Context, app *appmodels.Application) (domain.PropertyID, error) {
	if app.Certification.State == appmodels.CertificationInProgress {
		return app.Certification.PropertyID, nil
	}

	propertyID := app.Draft.PropertyID
	if propertyID.IsZero() {
		propertyID = domain.NewPropertyID()
	}
	app.ApplyCertificationReservation(propertyID, requestcontext.Now(ctx))
	if err := s.applications.Update(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return "", dErrors.New(dErrors.CodeConcurrentModification, "application changed concurrently, re-read and retry")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve certification")
	}
	return propertyID, nil
}

// handleLedgerFailure clears the reservation on a definitive failure so the
// next attempt submits fresh; a timeout keeps it so the retry re-polls the
// in-flight submission.
func (s *Service) handleLedgerFailure(ctx context.Context, app *appmodels.Application, cause error) error {
	if dErrors.HasCode(cause, dErrors.CodeLedgerTimeout) {
		s.metrics.IncCertifications("timeout")
		return cause
	}

	s.metrics.IncCertifications("failure")
	app.ClearCertificationReservation(requestcontext.Now(ctx))
	if err := s.applications.Update(ctx, app); err != nil {
		s.logger.WarnContext(ctx, "failed to clear certification reservation",
			"application_id", app.ID, "error", err)
	}
	return cause
}

// persistProperty creates the property bound to its confirmed ledger
// transaction, or binds the transaction to an already existing property on a
// resumed saga. A different existing hash is an invariant violation.
func (s *Service) persistProperty(ctx context.Context, app *appmodels.Application, propertyID domain.PropertyID, owner domain.ActorRef, hash string, record ledger.Record) (*propmodels.Property, error) {
	tx := propmodels.LedgerTx{Hash: record.TxHash, BlockRef: record.BlockRef}
	now := requestcontext.Now(ctx)

	existing, err := s.properties.FindByID(ctx, propertyID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		property := propmodels.New(propertyID, owner, app.Draft.Address, app.Draft.AreaSqft, app.Draft.DeclaredValue, hash, tx, app.Draft.DocumentRefs, now)
		if createErr := s.properties.Create(ctx, property); createErr != nil {
			if errors.Is(createErr, sentinel.ErrConflict) {
				// Lost a create race with our own retry; bind instead.
				return s.bindExisting(ctx, propertyID, hash, tx)
			}
			return nil, dErrors.Wrap(createErr, dErrors.CodeInternal, "failed to persist property")
		}
		return property, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	default:
		if app.Kind.RequiresExistingProperty() && existing.LedgerTx.Hash != record.TxHash {
			// Transfer and correction filings re-certify an existing
			// title: the draft facts replace the recorded ones under a
			// new ledger anchor.
			if err := existing.CanTransfer(); err != nil {
				return nil, err
			}
			existing.OwnerRef = owner
			existing.Address = app.Draft.Address
			existing.AreaSqft = app.Draft.AreaSqft
			existing.Value = app.Draft.DeclaredValue
			existing.ContentHash = hash
			existing.LedgerTx = tx
		} else if bindErr := existing.BindLedgerTx(hash, tx); bindErr != nil {
			return nil, bindErr
		}
		existing.UpdatedAt = now
		if updateErr := s.properties.Update(ctx, existing); updateErr != nil {
			if errors.Is(updateErr, sentinel.ErrVersionConflict) {
				return nil, dErrors.New(dErrors.CodeConcurrentModification, "property changed concurrently, re-read and retry")
			}
			return nil, dErrors.Wrap(updateErr, dErrors.CodeInternal, "failed to persist property")
		}
		return existing, nil
	}
}

func (s *Service) bindExisting(ctx context.Context, propertyID domain.PropertyID, hash string, tx propmodels.LedgerTx) (*propmodels.Property, error) {
	existing, err := s.properties.FindByID(ctx, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	if err := existing.BindLedgerTx(hash, tx); err != nil {
		return nil, err
	}
	if err := s.properties.Update(ctx, existing); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist property")
	}
	return existing, nil
}

func (s *Service) loadCertified(ctx context.Context, propertyID domain.PropertyID) (*propmodels.Property, error) {
	property, err := s.properties.FindByID(ctx, propertyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "approved application references a missing property")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	return property, nil
}

func (s *Service) emitCertified(ctx context.Context, propertyID domain.PropertyID, txHash string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Entry{
		ActorRef:    requestcontext.Actor(ctx),
		Action:      audit.ActionCertificateGenerated,
		SubjectRef:  propertyID.String(),
		Timestamp:   requestcontext.Now(ctx),
		LedgerTxRef: txHash,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit certification audit entry", "error", err)
	}
}
