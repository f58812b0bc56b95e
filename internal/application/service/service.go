// Package service drives the application lifecycle: citizen submission,
// registrar decisions, and the hand-off to certification once quorum is met.
package service

import (
	"context"
	"errors"
	"log/slog"

	"terrier/internal/application/models"
	"terrier/internal/application/store"
	"terrier/internal/approval"
	"terrier/internal/audit"
	"terrier/internal/platform/metrics"
	propmodels "terrier/internal/property/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/requestcontext"

	dErrors "terrier/pkg/domain-errors"
)

// Certifier runs the certification saga for an application that met quorum.
type Certifier interface {
	Certify(ctx context.Context, id domain.ApplicationID) (*propmodels.Property, error)
}

type Service struct {
	store       store.Store
	settings    approval.SettingsStore
	coordinator *approval.Coordinator
	certifier   Certifier
	audit       *audit.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewService(st store.Store, settings approval.SettingsStore, coordinator *approval.Coordinator, certifier Certifier, auditPub *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:       st,
		settings:    settings,
		coordinator: coordinator,
		certifier:   certifier,
		audit:       auditPub,
		logger:      logger,
		metrics:     m,
	}
}

// SubmitParams carries a citizen filing.
type SubmitParams struct {
	Kind  domain.ApplicationKind
	Draft models.PropertyDraft
}

// Submit validates and stores a new application in pending state.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.Application, error) {
	applicant := requestcontext.Actor(ctx)
	app, err := models.New(domain.NewApplicationID(), params.Kind, applicant, params.Draft, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, app); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store application")
	}

	s.metrics.IncApplicationsSubmitted()
	s.logger.InfoContext(ctx, "application submitted",
		"application_id", app.ID, "kind", app.Kind, "applicant", applicant)
	s.emit(ctx, audit.ActionApplicationSubmitted, app.ID.String(), "")
	return app, nil
}

// Get returns an application by ID.
func (s *Service) Get(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	app, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// ListByApplicant returns the caller's filings, newest first.
func (s *Service) ListByApplicant(ctx context.Context, applicant domain.ActorRef) ([]*models.Application, error) {
	apps, err := s.store.ListByApplicant(ctx, applicant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

// DecisionParams carries one registrar verdict.
type DecisionParams struct {
	ApplicationID domain.ApplicationID
	Decision      models.Decision
	Comment       string
}

// DecisionResult reports the state after a decision. Property is set when
// the decision completed quorum and certification succeeded.
type DecisionResult struct {
	Application *models.Application
	Property    *propmodels.Property
}

// RecordDecision applies a registrar decision. A reject is authoritative and
// terminal regardless of quorum. An approve counts toward the active policy;
// when quorum is met the application is handed to the certifier, and a
// certification failure leaves it under review with its reservation intact so
// the operation can be retried.
func (s *Service) RecordDecision(ctx context.Context, params DecisionParams) (DecisionResult, error) {
	registrar := requestcontext.Actor(ctx)
	app, err := s.Get(ctx, params.ApplicationID)
	if err != nil {
		return DecisionResult{}, err
	}

	if err := app.CanRecordDecision(registrar); err != nil {
		return DecisionResult{}, err
	}

	now := requestcontext.Now(ctx)
	if params.Decision == models.DecisionReject {
		app.ApplyRejection(params.Comment, now)
	} else {
		app.ApplyDecision(models.Approval{
			RegistrarRef: registrar,
			Rank:         requestcontext.RegistrarRank(ctx),
			Decision:     params.Decision,
			Comment:      params.Comment,
			Timestamp:    now,
		})
	}

	if err := s.store.Update(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return DecisionResult{}, dErrors.New(dErrors.CodeConcurrentModification, "application changed concurrently, re-read and retry")
		}
		return DecisionResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store decision")
	}

	s.metrics.IncDecisionsRecorded(string(params.Decision))
	s.emit(ctx, audit.ActionDecisionRecorded, app.ID.String(), string(params.Decision))

	if params.Decision == models.DecisionReject {
		s.logger.InfoContext(ctx, "application rejected",
			"application_id", app.ID, "registrar", registrar, "reason", params.Comment)
		s.emit(ctx, audit.ActionApplicationRejected, app.ID.String(), params.Comment)
		return DecisionResult{Application: app}, nil
	}

	met, err := s.quorumMet(ctx, app)
	if err != nil {
		return DecisionResult{}, err
	}
	if !met {
		return DecisionResult{Application: app}, nil
	}

	property, err := s.certifier.Certify(ctx, app.ID)
	if err != nil {
		// The decision is recorded; only certification failed. The
		// application stays under review and the caller may retry.
		return DecisionResult{}, err
	}

	certified, err := s.Get(ctx, app.ID)
	if err != nil {
		return DecisionResult{}, err
	}
	return DecisionResult{Application: certified, Property: property}, nil
}

func (s *Service) quorumMet(ctx context.Context, app *models.Application) (bool, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approval settings")
	}
	return s.coordinator.QuorumMet(app, settings), nil
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
