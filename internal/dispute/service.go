// Package dispute drives the litigation workflow: raising a dispute freezes
// the property, a court case carries orders and hearings, and closing or
// dismissing the dispute unfreezes it.
package dispute

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"terrier/internal/audit"
	"terrier/internal/dispute/models"
	"terrier/internal/dispute/store"
	"terrier/internal/platform/metrics"
	propstore "terrier/internal/property/store"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/requestcontext"

	dErrors "terrier/pkg/domain-errors"
)

type Service struct {
	disputes   store.DisputeStore
	cases      store.CaseStore
	properties propstore.Store
	audit      *audit.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewService(disputes store.DisputeStore, cases store.CaseStore, properties propstore.Store, auditPub *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		disputes:   disputes,
		cases:      cases,
		properties: properties,
		audit:      auditPub,
		logger:     logger,
		metrics:    m,
	}
}

// RaiseParams carries a new dispute filing.
type RaiseParams struct {
	PropertyID domain.PropertyID
	Reason     string
}

// Raise opens a dispute against a certified property and freezes it. The
// store's uniqueness constraint, not this check, is what holds the
// one-active-dispute invariant under concurrent attempts; the pre-check just
// gives a cleaner error on the common path.
func (s *Service) Raise(ctx context.Context, params RaiseParams) (*models.Dispute, error) {
	property, err := s.properties.FindByID(ctx, params.PropertyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}

	if _, err := s.disputes.FindActiveByProperty(ctx, params.PropertyID); err == nil {
		return nil, dErrors.New(dErrors.CodeDuplicateDispute, "property already has an active dispute")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check active disputes")
	}

	now := requestcontext.Now(ctx)
	dispute, err := models.New(domain.NewDisputeID(), params.PropertyID, requestcontext.Actor(ctx), params.Reason, now)
	if err != nil {
		return nil, err
	}

	if err := s.disputes.Create(ctx, dispute); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateDispute, "property already has an active dispute")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store dispute")
	}

	if err := s.freeze(ctx, property.PropertyID, now); err != nil {
		return nil, err
	}

	s.metrics.IncDisputesRaised()
	s.logger.InfoContext(ctx, "dispute raised",
		"dispute_id", dispute.ID, "property_id", params.PropertyID)
	s.emit(ctx, audit.ActionDisputeRaised, params.PropertyID.String(), params.Reason)
	return dispute, nil
}

// ReferToCourt opens the court case for an open dispute.
func (s *Service) ReferToCourt(ctx context.Context, disputeID domain.DisputeID) (*models.Case, error) {
	dispute, err := s.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := dispute.CanRefer(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	courtCase := models.NewCase(domain.NewCaseID(), dispute.ID, dispute.PropertyID, now)
	if err := s.cases.Create(ctx, courtCase); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store case")
	}

	dispute.ApplyReferral(courtCase.ID, now)
	if err := s.updateDispute(ctx, dispute); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "dispute referred to court",
		"dispute_id", dispute.ID, "case_id", courtCase.ID)
	s.emit(ctx, audit.ActionCaseOpened, dispute.PropertyID.String(), "")
	return courtCase, nil
}

// IssueOrder records a court directive on an active case.
func (s *Service) IssueOrder(ctx context.Context, caseID domain.CaseID, text string) (*models.Case, error) {
	courtCase, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if err := courtCase.ApplyOrder(text, now); err != nil {
		return nil, err
	}
	if err := s.updateCase(ctx, courtCase); err != nil {
		return nil, err
	}
	s.recordTimeline(ctx, courtCase.DisputeID, models.EventOrder, text, now)

	s.emit(ctx, audit.ActionCourtOrderIssued, courtCase.PropertyID.String(), text)
	return courtCase, nil
}

// ScheduleHearing adds a hearing to an active case.
func (s *Service) ScheduleHearing(ctx context.Context, caseID domain.CaseID, date time.Time, venue string) (*models.Case, error) {
	courtCase, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if err := courtCase.ApplyHearing(date, venue, now); err != nil {
		return nil, err
	}
	if err := s.updateCase(ctx, courtCase); err != nil {
		return nil, err
	}
	s.recordTimeline(ctx, courtCase.DisputeID, models.EventHearing, "hearing scheduled for "+date.Format(time.DateOnly), now)

	s.emit(ctx, audit.ActionHearingScheduled, courtCase.PropertyID.String(), date.Format(time.RFC3339))
	return courtCase, nil
}

// CloseCase seals the case with its resolution, resolves the dispute, and
// unfreezes the property. This is the only path that clears the disputed
// state aside from dismissal, and it is irreversible.
func (s *Service) CloseCase(ctx context.Context, caseID domain.CaseID, resolution string) (*models.Case, error) {
	courtCase, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	dispute, err := s.GetDispute(ctx, courtCase.DisputeID)
	if err != nil {
		return nil, err
	}
	if err := dispute.CanResolve(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if err := courtCase.ApplyClose(resolution, now); err != nil {
		return nil, err
	}
	if err := s.updateCase(ctx, courtCase); err != nil {
		return nil, err
	}

	dispute.ApplyResolution(resolution, now)
	if err := s.updateDispute(ctx, dispute); err != nil {
		return nil, err
	}

	if err := s.unfreeze(ctx, dispute.PropertyID, now); err != nil {
		return nil, err
	}

	s.metrics.IncCasesClosed()
	s.logger.InfoContext(ctx, "case closed",
		"case_id", courtCase.ID, "dispute_id", dispute.ID, "resolution", resolution)
	s.emit(ctx, audit.ActionCaseClosed, dispute.PropertyID.String(), resolution)
	return courtCase, nil
}

// Dismiss terminates an active dispute without a court resolution. Any open
// case is closed without a resolution summary, and the property unfreezes:
// dismissal ends active litigation just like resolution does.
func (s *Service) Dismiss(ctx context.Context, disputeID domain.DisputeID) (*models.Dispute, error) {
	dispute, err := s.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := dispute.CanDismiss(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if !dispute.CaseRef.IsNil() {
		courtCase, err := s.GetCase(ctx, dispute.CaseRef)
		if err != nil {
			return nil, err
		}
		if courtCase.Status == models.CaseActive {
			if err := courtCase.ApplyClose("", now); err != nil {
				return nil, err
			}
			if err := s.updateCase(ctx, courtCase); err != nil {
				return nil, err
			}
		}
	}

	dispute.ApplyDismissal(now)
	if err := s.updateDispute(ctx, dispute); err != nil {
		return nil, err
	}

	if err := s.unfreeze(ctx, dispute.PropertyID, now); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "dispute dismissed", "dispute_id", dispute.ID)
	s.emit(ctx, audit.ActionDisputeDismissed, dispute.PropertyID.String(), "")
	return dispute, nil
}

// GetDispute returns a dispute by ID.
func (s *Service) GetDispute(ctx context.Context, id domain.DisputeID) (*models.Dispute, error) {
	dispute, err := s.disputes.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "dispute not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dispute")
	}
	return dispute, nil
}

// GetCase returns a case by ID.
func (s *Service) GetCase(ctx context.Context, id domain.CaseID) (*models.Case, error) {
	courtCase, err := s.cases.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	return courtCase, nil
}

// ListByProperty returns the dispute history for a property, newest first.
func (s *Service) ListByProperty(ctx context.Context, propertyID domain.PropertyID) ([]*models.Dispute, error) {
	disputes, err := s.disputes.ListByProperty(ctx, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list disputes")
	}
	return disputes, nil
}

// freezeRetries bounds the CAS loop on the property's frozen flag. The
// dispute row is already written when the flag is flipped, so a lost version
// race must be retried, not surfaced: the dispute machine wins over
// concurrent property writes.
const freezeRetries = 5

// freeze flips the property into disputed state. Already-frozen is a no-op
// so raise retries stay safe.
func (s *Service) freeze(ctx context.Context, propertyID domain.PropertyID, now time.Time) error {
	return s.setFrozen(ctx, propertyID, true, now)
}

func (s *Service) unfreeze(ctx context.Context, propertyID domain.PropertyID, now time.Time) error {
	return s.setFrozen(ctx, propertyID, false, now)
}

func (s *Service) setFrozen(ctx context.Context, propertyID domain.PropertyID, frozen bool, now time.Time) error {
	for attempt := 0; attempt < freezeRetries; attempt++ {
		property, err := s.properties.FindByID(ctx, propertyID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
		}
		if property.IsFrozen() == frozen {
			return nil
		}
		if frozen {
			property.ApplyFreeze(now)
		} else {
			property.ApplyUnfreeze(now)
		}
		err = s.properties.Update(ctx, property)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrVersionConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update property dispute state")
		}
		s.logger.WarnContext(ctx, "property freeze lost a version race, retrying",
			"property_id", propertyID, "attempt", attempt+1)
	}
	return dErrors.New(dErrors.CodeConcurrentModification, "property changed concurrently, re-read and retry")
}

// recordTimeline mirrors court activity onto the dispute's timeline.
// Best-effort: timeline drift is logged, never fatal to the court action.
func (s *Service) recordTimeline(ctx context.Context, disputeID domain.DisputeID, eventType, message string, now time.Time) {
	dispute, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load dispute for timeline", "dispute_id", disputeID, "error", err)
		return
	}
	dispute.RecordEvent(eventType, message, now)
	if err := s.disputes.Update(ctx, dispute); err != nil {
		s.logger.WarnContext(ctx, "failed to record timeline event", "dispute_id", disputeID, "error", err)
	}
}

func (s *Service) updateDispute(ctx context.Context, dispute *models.Dispute) error {
	if err := s.disputes.Update(ctx, dispute); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return dErrors.New(dErrors.CodeConcurrentModification, "dispute changed concurrently, re-read and retry")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store dispute")
	}
	return nil
}

func (s *Service) updateCase(ctx context.Context, courtCase *models.Case) error {
	if err := s.cases.Update(ctx, courtCase); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return dErrors.New(dErrors.CodeConcurrentModification, "case changed concurrently, re-read and retry")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store case")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, subjectRef, detail string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Entry{
		ActorRef:   requestcontext.Actor(ctx),
		Action:     action,
		SubjectRef: subjectRef,
		Timestamp:  requestcontext.Now(ctx),
		Detail:     detail,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit entry", "action", action, "error", err)
	}
}
