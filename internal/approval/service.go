package approval

import (
	"context"
	"errors"
	"log/slog"

	"terrier/internal/audit"
	dErrors "terrier/pkg/domain-errors"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/requestcontext"
)

// SettingsStore is the persistence port for the singleton policy.
type SettingsStore interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, settings Settings) error
}

// Service exposes the admin surface over the approval policy.
type Service struct {
	store  SettingsStore
	logger *slog.Logger
	audit  *audit.Publisher
}

func NewService(store SettingsStore, logger *slog.Logger, auditPub *audit.Publisher) *Service {
	return &Service{store: store, logger: logger, audit: auditPub}
}

// Current returns the policy in force.
func (s *Service) Current(ctx context.Context) (Settings, error) {
	settings, err := s.store.Load(ctx)
	if err != nil {
		return Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approval settings")
	}
	return settings, nil
}

// UpdateParams carries an admin policy change.
type UpdateParams struct {
	Enabled           bool
	RequiredApprovals int
	ApprovalType      Type
	RankSequence      []string
}

// Update validates and persists a new policy. In-flight applications keep
// their recorded approvals; only future quorum checks see the change.
func (s *Service) Update(ctx context.Context, params UpdateParams) (Settings, error) {
	current, err := s.store.Load(ctx)
	if err != nil {
		return Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approval settings")
	}

	next := Settings{
		Enabled:           params.Enabled,
		RequiredApprovals: params.RequiredApprovals,
		ApprovalType:      params.ApprovalType,
		RankSequence:      params.RankSequence,
		UpdatedAt:         requestcontext.Now(ctx),
		Version:           current.Version,
	}
	if len(next.RankSequence) == 0 {
		next.RankSequence = append([]string(nil), DefaultRankSequence...)
	}
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}

	if err := s.store.Save(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrVersionConflict) {
			return Settings{}, dErrors.New(dErrors.CodeConcurrentModification, "approval settings changed concurrently, re-read and retry")
		}
		return Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save approval settings")
	}
	next.Version++

	s.emitUpdated(ctx)
	return next, nil
}

func (s *Service) emitUpdated(ctx context.Context) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Entry{
		ActorRef:   requestcontext.Actor(ctx),
		Action:     audit.ActionSettingsUpdated,
		SubjectRef: "approval-settings",
		Timestamp:  requestcontext.Now(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit settings audit entry", "error", err)
	}
}
