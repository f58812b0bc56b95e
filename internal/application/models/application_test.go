package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrier/pkg/domain"
	dErrors "terrier/pkg/domain-errors"
)

func validDraft() PropertyDraft {
	return PropertyDraft{
		OwnerName:     "Amina Osei",
		Address:       "14 Harbour Lane, Port District",
		AreaSqft:      1200,
		DeclaredValue: 250_000,
	}
}

func TestNew_Validation(t *testing.T) {
	now := time.Now()

	t.Run("accepts a complete issue draft", func(t *testing.T) {
		app, err := New(domain.NewApplicationID(), domain.KindIssue, "citizen-1", validDraft(), now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, app.Status)
		assert.Equal(t, int64(1), app.Version)
	})

	t.Run("rejects missing owner name", func(t *testing.T) {
		draft := validDraft()
		draft.OwnerName = "   "
		_, err := New(domain.NewApplicationID(), domain.KindIssue, "citizen-1", draft, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects non-positive area", func(t *testing.T) {
		draft := validDraft()
		draft.AreaSqft = 0
		_, err := New(domain.NewApplicationID(), domain.KindIssue, "citizen-1", draft, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects non-positive value", func(t *testing.T) {
		draft := validDraft()
		draft.DeclaredValue = -5
		_, err := New(domain.NewApplicationID(), domain.KindIssue, "citizen-1", draft, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("transfer requires a property reference", func(t *testing.T) {
		_, err := New(domain.NewApplicationID(), domain.KindTransfer, "citizen-1", validDraft(), now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		draft := validDraft()
		draft.PropertyID = domain.NewPropertyID()
		_, err = New(domain.NewApplicationID(), domain.KindTransfer, "citizen-1", draft, now)
		assert.NoError(t, err)
	})

	t.Run("rejects empty applicant", func(t *testing.T) {
		_, err := New(domain.NewApplicationID(), domain.KindIssue, "", validDraft(), now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestDecisionLifecycle(t *testing.T) {
	now := time.Now()
	app, err := New(domain.NewApplicationID(), domain.KindIssue, "citizen-1", validDraft(), now)
	require.NoError(t, err)

	t.Run("first decision moves pending to under-review", func(t *testing.T) {
		require.NoError(t, app.CanRecordDecision("registrar-1"))
		app.ApplyDecision(Approval{RegistrarRef: "registrar-1", Decision: DecisionApprove, Timestamp: now})
		assert.Equal(t, StatusUnderReview, app.Status)
		assert.Equal(t, 1, app.ApproveCount())
	})

	t.Run("applicant cannot decide their own filing", func(t *testing.T) {
		err := app.CanRecordDecision("citizen-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSelfApproval))
	})

	t.Run("duplicate registrar vote is rejected", func(t *testing.T) {
		err := app.CanRecordDecision("registrar-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateApproval))
		assert.Len(t, app.Approvals, 1, "approvals list unchanged")
	})

	t.Run("rejection is terminal", func(t *testing.T) {
		app.ApplyRejection("Suspected fraudulent documentation", now)
		assert.Equal(t, StatusRejected, app.Status)
		assert.Equal(t, "Suspected fraudulent documentation", app.RejectionReason)

		err := app.CanRecordDecision("registrar-2")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusUnderReview))
	assert.True(t, StatusPending.CanTransitionTo(StatusRejected))
	assert.True(t, StatusUnderReview.CanTransitionTo(StatusApproved))
	assert.False(t, StatusPending.CanTransitionTo(StatusApproved), "approval requires review first")
	assert.False(t, StatusApproved.CanTransitionTo(StatusRejected), "terminal states are final")
	assert.False(t, StatusRejected.CanTransitionTo(StatusUnderReview))
}

func TestCertificationReservation(t *testing.T) {
	now := time.Now()
	app, err := New(domain.NewApplicationID(), domain.KindIssue, "citizen-1", validDraft(), now)
	require.NoError(t, err)

	t.Run("pending application cannot be certified", func(t *testing.T) {
		err := app.CanReserveCertification()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	app.ApplyDecision(Approval{RegistrarRef: "registrar-1", Decision: DecisionApprove, Timestamp: now})

	t.Run("reservation pins the property id", func(t *testing.T) {
		require.NoError(t, app.CanReserveCertification())
		pid := domain.NewPropertyID()
		app.ApplyCertificationReservation(pid, now)
		assert.Equal(t, CertificationInProgress, app.Certification.State)
		assert.Equal(t, pid, app.Certification.PropertyID)
	})

	t.Run("an in-progress reservation can be resumed", func(t *testing.T) {
		assert.NoError(t, app.CanReserveCertification(), "in-progress is resumable, not an error")
	})

	t.Run("certified application refuses re-certification", func(t *testing.T) {
		app.ApplyCertified(app.Certification.PropertyID, "0xabc123", now)
		assert.Equal(t, StatusApproved, app.Status)
		assert.Equal(t, CertificationCompleted, app.Certification.State)
		assert.NotEmpty(t, app.LedgerTxHash)

		err := app.CanReserveCertification()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}
