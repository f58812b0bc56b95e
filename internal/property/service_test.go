package property_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrier/internal/audit"
	auditstore "terrier/internal/audit/store"
	"terrier/internal/ledger"
	"terrier/internal/property"
	"terrier/internal/property/models"
	"terrier/internal/property/store"
	"terrier/pkg/domain"
	"terrier/pkg/testutil"

	dErrors "terrier/pkg/domain-errors"
)

type fixture struct {
	svc        *property.Service
	properties *store.InMemory
	fake       *ledger.Fake
	auditStore *auditstore.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := ledger.NewFake()
	gateway := ledger.NewGateway(fake, ledger.NewMemoryReservations(), logger,
		ledger.WithConfirmWindow(time.Second, time.Millisecond))
	properties := store.NewInMemory()
	auditStore := auditstore.NewInMemory()
	pub := audit.NewPublisher(auditStore)
	t.Cleanup(pub.Close)

	return &fixture{
		svc:        property.NewService(properties, gateway, pub, logger, nil),
		properties: properties,
		fake:       fake,
		auditStore: auditStore,
	}
}

func (f *fixture) seed(t *testing.T, id domain.PropertyID, owner domain.ActorRef) *models.Property {
	t.Helper()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	p := models.New(id, owner, "12 Harbour Rd", 1200, 500000,
		models.ContentHash(owner, "12 Harbour Rd", 1200, 500000),
		models.LedgerTx{Hash: "tx-genesis", BlockRef: "block-000001"}, nil, now)
	require.NoError(t, f.properties.Create(context.Background(), p))
	return p
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PROP-aaa", "citizen-1")
	ctx := testutil.ActorContext("citizen-1", domain.RoleCitizen)

	got, err := f.svc.Transfer(ctx, property.TransferParams{
		PropertyID: "PROP-aaa",
		NewOwner:   "citizen-2",
		SalePrice:  650000,
	})
	require.NoError(t, err)
	assert.EqualValues(t, "citizen-2", got.OwnerRef)
	assert.EqualValues(t, 650000, got.Value)
	assert.NotEqual(t, "tx-genesis", got.LedgerTx.Hash)
	assert.Equal(t, 1, f.fake.SubmissionCount())

	entries, err := f.auditStore.ListBySubject(ctx, "PROP-aaa")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionPropertyTransferred, entries[0].Action)
	assert.Equal(t, got.LedgerTx.Hash, entries[0].LedgerTxRef)
}

func TestTransfer_FrozenFailsWithNoLedgerWrite(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "PROP-aaa", "citizen-1")
	p.ApplyFreeze(time.Now())
	require.NoError(t, f.properties.Update(context.Background(), p))

	_, err := f.svc.Transfer(context.Background(), property.TransferParams{
		PropertyID: "PROP-aaa",
		NewOwner:   "citizen-2",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePropertyFrozen))
	assert.Equal(t, 0, f.fake.SubmissionCount(), "a frozen property must produce zero ledger submissions")
}

func TestTransfer_UnknownProperty(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Transfer(context.Background(), property.TransferParams{
		PropertyID: "PROP-missing",
		NewOwner:   "citizen-2",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestTransfer_Validation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PROP-aaa", "citizen-1")
	ctx := testutil.ActorContext("citizen-1", domain.RoleCitizen)

	_, err := f.svc.Transfer(ctx, property.TransferParams{
		PropertyID: "PROP-aaa",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = f.svc.Transfer(ctx, property.TransferParams{
		PropertyID: "PROP-aaa",
		NewOwner:   "citizen-1",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "transfer to the current owner is rejected")

	assert.Equal(t, 0, f.fake.SubmissionCount())
}

func TestTransfer_NonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PROP-aaa", "citizen-1")

	_, err := f.svc.Transfer(testutil.ActorContext("citizen-2", domain.RoleCitizen), property.TransferParams{
		PropertyID: "PROP-aaa",
		NewOwner:   "citizen-2",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Equal(t, 0, f.fake.SubmissionCount())

	got, err := f.svc.Get(context.Background(), "PROP-aaa")
	require.NoError(t, err)
	assert.EqualValues(t, "citizen-1", got.OwnerRef, "ownership is unchanged")

	// A registrar acts on behalf of the registry and may transfer any title.
	got, err = f.svc.Transfer(testutil.ActorContext("registrar-1", domain.RoleRegistrar), property.TransferParams{
		PropertyID: "PROP-aaa",
		NewOwner:   "citizen-2",
	})
	require.NoError(t, err)
	assert.EqualValues(t, "citizen-2", got.OwnerRef)
}

func TestTransfer_KeepsValueWhenNoSalePrice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PROP-aaa", "citizen-1")

	got, err := f.svc.Transfer(testutil.ActorContext("citizen-1", domain.RoleCitizen), property.TransferParams{
		PropertyID: "PROP-aaa",
		NewOwner:   "citizen-2",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 500000, got.Value)
}

func TestGetAndListByOwner(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PROP-aaa", "citizen-1")
	f.seed(t, "PROP-bbb", "citizen-1")
	f.seed(t, "PROP-ccc", "citizen-2")

	got, err := f.svc.Get(context.Background(), "PROP-aaa")
	require.NoError(t, err)
	assert.EqualValues(t, "PROP-aaa", got.PropertyID)

	owned, err := f.svc.ListByOwner(context.Background(), "citizen-1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}
