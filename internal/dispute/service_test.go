package dispute_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrier/internal/audit"
	auditstore "terrier/internal/audit/store"
	"terrier/internal/dispute"
	"terrier/internal/dispute/models"
	"terrier/internal/dispute/store"
	propmodels "terrier/internal/property/models"
	propstore "terrier/internal/property/store"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	"terrier/pkg/testutil"

	dErrors "terrier/pkg/domain-errors"
)

type fixture struct {
	svc        *dispute.Service
	properties *propstore.InMemory
	auditStore *auditstore.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	properties := propstore.NewInMemory()
	auditStore := auditstore.NewInMemory()
	pub := audit.NewPublisher(auditStore)
	t.Cleanup(pub.Close)

	return &fixture{
		svc:        dispute.NewService(store.NewInMemoryDisputes(), store.NewInMemoryCases(), properties, pub, logger, nil),
		properties: properties,
		auditStore: auditStore,
	}
}

func (f *fixture) seedProperty(t *testing.T, id domain.PropertyID) {
	t.Helper()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	p := propmodels.New(id, "citizen-1", "12 Harbour Rd", 1200, 500000,
		propmodels.ContentHash("citizen-1", "12 Harbour Rd", 1200, 500000),
		propmodels.LedgerTx{Hash: "tx-1", BlockRef: "block-000001"}, nil, now)
	require.NoError(t, f.properties.Create(context.Background(), p))
}

func (f *fixture) status(t *testing.T, id domain.PropertyID) propmodels.Status {
	t.Helper()
	p, err := f.properties.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func courtCtx() context.Context {
	return testutil.ActorContext("court-1", domain.RoleCourt)
}

func TestRaise_FreezesProperty(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")

	d, err := f.svc.Raise(courtCtx(), dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, d.Status)
	assert.Equal(t, propmodels.StatusDisputed, f.status(t, "PROP-aaa"))

	entries, err := f.auditStore.ListBySubject(context.Background(), "PROP-aaa")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionDisputeRaised, entries[0].Action)
}

// racingPropertyStore loses the first property write to a version bump, the
// way an in-flight transfer CAS landing between read and write would.
type racingPropertyStore struct {
	propstore.Store
	raced bool
}

func (s *racingPropertyStore) Update(ctx context.Context, p *propmodels.Property) error {
	if !s.raced {
		s.raced = true
		return sentinel.ErrVersionConflict
	}
	return s.Store.Update(ctx, p)
}

func TestRaise_FreezeWinsVersionRace(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	properties := propstore.NewInMemory()
	racing := &racingPropertyStore{Store: properties}
	svc := dispute.NewService(store.NewInMemoryDisputes(), store.NewInMemoryCases(), racing, nil, logger, nil)

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	p := propmodels.New("PROP-aaa", "citizen-1", "12 Harbour Rd", 1200, 500000,
		propmodels.ContentHash("citizen-1", "12 Harbour Rd", 1200, 500000),
		propmodels.LedgerTx{Hash: "tx-1", BlockRef: "block-000001"}, nil, now)
	require.NoError(t, properties.Create(context.Background(), p))

	d, err := svc.Raise(courtCtx(), dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err, "a lost freeze CAS must be retried, not surfaced")
	assert.Equal(t, models.StatusOpen, d.Status)

	frozen, err := properties.FindByID(context.Background(), "PROP-aaa")
	require.NoError(t, err)
	assert.Equal(t, propmodels.StatusDisputed, frozen.Status)
}

func TestRaise_DuplicateActiveDispute(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")

	_, err := f.svc.Raise(courtCtx(), dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err)

	_, err = f.svc.Raise(courtCtx(), dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "second claim"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateDispute))
}

func TestRaise_UnknownProperty(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Raise(courtCtx(), dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// Concurrent raise attempts on one property: exactly one wins, the rest see
// the duplicate error from the store's uniqueness constraint.
func TestRaise_ConcurrentAttempts(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")

	var won, duplicated atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Raise(courtCtx(), dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
			switch {
			case err == nil:
				won.Add(1)
			case dErrors.HasCode(err, dErrors.CodeDuplicateDispute):
				duplicated.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, won.Load(), "exactly one raise wins")
	assert.EqualValues(t, 19, duplicated.Load())
	assert.Equal(t, propmodels.StatusDisputed, f.status(t, "PROP-aaa"))
}

// Full litigation pass: raise freezes, referral opens a case, an order and a
// hearing are recorded, and closing with a resolution unfreezes the title.
func TestLitigationLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")
	ctx := courtCtx()

	d, err := f.svc.Raise(ctx, dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err)
	assert.Equal(t, propmodels.StatusDisputed, f.status(t, "PROP-aaa"))

	courtCase, err := f.svc.ReferToCourt(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseActive, courtCase.Status)

	_, err = f.svc.IssueOrder(ctx, courtCase.ID, "produce the original deed")
	require.NoError(t, err)

	_, err = f.svc.ScheduleHearing(ctx, courtCase.ID, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), "District Court 4")
	require.NoError(t, err)

	closed, err := f.svc.CloseCase(ctx, courtCase.ID, "title cleared")
	require.NoError(t, err)
	assert.Equal(t, models.CaseClosed, closed.Status)
	assert.Equal(t, "title cleared", closed.Resolution)
	assert.Len(t, closed.Orders, 1)
	assert.Len(t, closed.Hearings, 1)

	resolved, err := f.svc.GetDispute(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	assert.Equal(t, propmodels.StatusApproved, f.status(t, "PROP-aaa"))

	// Closing again is illegal.
	_, err = f.svc.CloseCase(ctx, courtCase.ID, "again")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	// A fresh dispute can now be raised.
	_, err = f.svc.Raise(ctx, dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "new claim"})
	require.NoError(t, err)
}

func TestDismiss_OpenDisputeUnfreezes(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")
	ctx := courtCtx()

	d, err := f.svc.Raise(ctx, dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err)

	dismissed, err := f.svc.Dismiss(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDismissed, dismissed.Status)
	assert.Equal(t, propmodels.StatusApproved, f.status(t, "PROP-aaa"))
}

func TestDismiss_InCourtClosesCase(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")
	ctx := courtCtx()

	d, err := f.svc.Raise(ctx, dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err)
	courtCase, err := f.svc.ReferToCourt(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.svc.Dismiss(ctx, d.ID)
	require.NoError(t, err)

	closed, err := f.svc.GetCase(ctx, courtCase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseClosed, closed.Status)
	assert.Empty(t, closed.Resolution)
	assert.Equal(t, propmodels.StatusApproved, f.status(t, "PROP-aaa"))
}

func TestOrdersOnClosedCase(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")
	ctx := courtCtx()

	d, err := f.svc.Raise(ctx, dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err)
	courtCase, err := f.svc.ReferToCourt(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.CloseCase(ctx, courtCase.ID, "title cleared")
	require.NoError(t, err)

	_, err = f.svc.IssueOrder(ctx, courtCase.ID, "late order")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = f.svc.ScheduleHearing(ctx, courtCase.ID, time.Now(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestReferToCourt_RequiresOpenDispute(t *testing.T) {
	f := newFixture(t)
	f.seedProperty(t, "PROP-aaa")
	ctx := courtCtx()

	d, err := f.svc.Raise(ctx, dispute.RaiseParams{PropertyID: "PROP-aaa", Reason: "forged deed"})
	require.NoError(t, err)
	_, err = f.svc.ReferToCourt(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.svc.ReferToCourt(ctx, d.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}
