package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrier/internal/application/models"
	"terrier/internal/application/service"
	appstore "terrier/internal/application/store"
	"terrier/internal/approval"
	approvalstore "terrier/internal/approval/store"
	"terrier/internal/audit"
	auditstore "terrier/internal/audit/store"
	"terrier/internal/certification"
	"terrier/internal/ledger"
	propstore "terrier/internal/property/store"
	"terrier/pkg/domain"
	"terrier/pkg/testutil"

	dErrors "terrier/pkg/domain-errors"
)

type fixture struct {
	svc        *service.Service
	settings   *approvalstore.InMemory
	properties *propstore.InMemory
	fake       *ledger.Fake
	auditStore *auditstore.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := ledger.NewFake()
	gateway := ledger.NewGateway(fake, ledger.NewMemoryReservations(), logger,
		ledger.WithConfirmWindow(time.Second, time.Millisecond))
	applications := appstore.NewInMemory()
	properties := propstore.NewInMemory()
	settings := approvalstore.NewInMemory()
	auditStore := auditstore.NewInMemory()
	pub := audit.NewPublisher(auditStore)
	t.Cleanup(pub.Close)

	certifier := certification.NewService(applications, properties, gateway, pub, logger, nil)
	svc := service.NewService(applications, settings, approval.NewCoordinator(), certifier, pub, logger, nil)

	return &fixture{
		svc:        svc,
		settings:   settings,
		properties: properties,
		fake:       fake,
		auditStore: auditStore,
	}
}

func (f *fixture) configure(t *testing.T, settings approval.Settings) {
	t.Helper()
	current, err := f.settings.Load(context.Background())
	require.NoError(t, err)
	settings.Version = current.Version
	require.NoError(t, f.settings.Save(context.Background(), settings))
}

func (f *fixture) submit(t *testing.T) *models.Application {
	t.Helper()
	ctx := testutil.ActorContext("citizen-1", domain.RoleCitizen)
	app, err := f.svc.Submit(ctx, service.SubmitParams{
		Kind: domain.KindIssue,
		Draft: models.PropertyDraft{
			OwnerName:     "Asha Verghese",
			Address:       "12 Harbour Rd",
			AreaSqft:      1200,
			DeclaredValue: 500000,
		},
	})
	require.NoError(t, err)
	return app
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)

	assert.Equal(t, models.StatusPending, app.Status)
	assert.EqualValues(t, "citizen-1", app.ApplicantRef)

	entries, err := f.auditStore.ListBySubject(context.Background(), app.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionApplicationSubmitted, entries[0].Action)
}

func TestSubmit_InvalidDraft(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.ActorContext("citizen-1", domain.RoleCitizen)

	_, err := f.svc.Submit(ctx, service.SubmitParams{
		Kind:  domain.KindIssue,
		Draft: models.PropertyDraft{OwnerName: "Asha Verghese"},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

// Two distinct registrars approve under a 2-of-N parallel policy: the
// application certifies, and a third approval is rejected as an illegal
// state transition.
func TestRecordDecision_ParallelQuorum(t *testing.T) {
	f := newFixture(t)
	f.configure(t, approval.Settings{
		Enabled:           true,
		RequiredApprovals: 2,
		ApprovalType:      approval.TypeParallel,
	})
	app := f.submit(t)

	first, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-1", "junior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, first.Application.Status)
	assert.Nil(t, first.Property)

	second, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-2", "senior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, second.Application.Status)
	require.NotNil(t, second.Property)
	assert.NotEmpty(t, second.Property.LedgerTx.Hash)
	assert.Equal(t, second.Property.PropertyID, second.Application.PropertyID)
	assert.Equal(t, 1, f.fake.SubmissionCount())

	_, err = f.svc.RecordDecision(testutil.RegistrarContext("reg-3", "chief"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

// A single reject is authoritative even with zero approvals recorded, and no
// property is ever created.
func TestRecordDecision_RejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)

	result, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-1", "junior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionReject,
		Comment:       "Suspected fraudulent documentation",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Application.Status)
	assert.Equal(t, "Suspected fraudulent documentation", result.Application.RejectionReason)
	assert.Nil(t, result.Property)
	assert.Equal(t, 0, f.fake.SubmissionCount())

	entries, err := f.auditStore.ListBySubject(context.Background(), app.ID.String())
	require.NoError(t, err)
	actions := make([]audit.Action, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionApplicationRejected)
}

func TestRecordDecision_DuplicateRegistrar(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)

	_, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-1", "junior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.NoError(t, err)

	_, err = f.svc.RecordDecision(testutil.RegistrarContext("reg-1", "junior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateApproval))
}

func TestRecordDecision_UnknownApplication(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-1", "junior"), service.DecisionParams{
		ApplicationID: domain.NewApplicationID(),
		Decision:      models.DecisionApprove,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// Sequential policy: approvals count only in rank order, so a senior approval
// stays dormant until the junior slot is filled.
func TestRecordDecision_SequentialOrdering(t *testing.T) {
	f := newFixture(t)
	f.configure(t, approval.Settings{
		Enabled:           true,
		RequiredApprovals: 2,
		ApprovalType:      approval.TypeSequential,
		RankSequence:      []string{"junior", "senior"},
	})
	app := f.submit(t)

	outOfOrder, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-senior", "senior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, outOfOrder.Application.Status)
	assert.Nil(t, outOfOrder.Property)

	completed, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-junior", "junior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, completed.Application.Status)
	require.NotNil(t, completed.Property)
}

// Disabled approval settings collapse to a single-approval policy.
func TestRecordDecision_DisabledSettings(t *testing.T) {
	f := newFixture(t)
	f.configure(t, approval.Settings{
		Enabled:           false,
		RequiredApprovals: 3,
		ApprovalType:      approval.TypeParallel,
	})
	app := f.submit(t)

	result, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-1", "junior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Application.Status)
	require.NotNil(t, result.Property)
}

// A ledger outage at quorum leaves the application under review with the
// decision recorded; a later retry decision is not needed, the certify retry
// path is.
func TestRecordDecision_CertificationFailureKeepsReview(t *testing.T) {
	f := newFixture(t)
	f.configure(t, approval.Settings{
		Enabled:           true,
		RequiredApprovals: 1,
		ApprovalType:      approval.TypeParallel,
	})
	app := f.submit(t)
	f.fake.FailNext()

	_, err := f.svc.RecordDecision(testutil.RegistrarContext("reg-1", "junior"), service.DecisionParams{
		ApplicationID: app.ID,
		Decision:      models.DecisionApprove,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	stored, err := f.svc.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, stored.Status)
	assert.Len(t, stored.Approvals, 1, "the decision itself is durable")
}

func TestListByApplicant(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.submit(t)

	apps, err := f.svc.ListByApplicant(context.Background(), "citizen-1")
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}
