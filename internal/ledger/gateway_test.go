package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrier/internal/ledger"
	dErrors "terrier/pkg/domain-errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGateway(fake *ledger.Fake, opts ...ledger.GatewayOption) (*ledger.Gateway, *ledger.MemoryReservations) {
	reservations := ledger.NewMemoryReservations()
	opts = append([]ledger.GatewayOption{
		ledger.WithConfirmWindow(time.Second, time.Millisecond),
	}, opts...)
	return ledger.NewGateway(fake, reservations, testLogger(), opts...), reservations
}

func payload(propertyID string) ledger.Payload {
	return ledger.Payload{
		Kind:        ledger.KindCertify,
		PropertyID:  propertyID,
		OwnerRef:    "citizen-1",
		ContentHash: "abc123",
	}
}

func TestGateway_CertifyConfirms(t *testing.T) {
	fake := ledger.NewFake()
	gw, reservations := newGateway(fake)

	rec, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.TxHash)
	assert.NotEmpty(t, rec.BlockRef)
	assert.Equal(t, 1, fake.SubmissionCount())

	// The reservation outlives confirmation; a retry before the caller
	// releases it converges on the same submission.
	_, reserved, err := reservations.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, reserved)

	again, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.NoError(t, err)
	assert.Equal(t, rec.TxHash, again.TxHash)
	assert.Equal(t, 1, fake.SubmissionCount())

	gw.Release(context.Background(), "app-1")
	_, reserved, err = reservations.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestGateway_CertifyWaitsThroughPendingPolls(t *testing.T) {
	fake := ledger.NewFake()
	fake.ConfirmAfter(3)
	gw, _ := newGateway(fake)

	rec, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.TxHash)
}

func TestGateway_FailureClearsReservation(t *testing.T) {
	fake := ledger.NewFake()
	fake.FailNext()
	gw, reservations := newGateway(fake)

	_, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	_, reserved, err := reservations.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, reserved, "a definitive failure must release the key for retry")

	// The retry submits fresh and succeeds.
	rec, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.TxHash)
	assert.Equal(t, 2, fake.SubmissionCount())
}

func TestGateway_TimeoutKeepsReservation(t *testing.T) {
	fake := ledger.NewFake()
	fake.ConfirmAfter(1000)
	gw, reservations := newGateway(fake, ledger.WithConfirmWindow(20*time.Millisecond, time.Millisecond))

	_, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerTimeout))

	id, reserved, err := reservations.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, reserved, "a timeout must keep the in-flight submission reserved")
	assert.NotEmpty(t, id)

	// The retry re-polls the same submission rather than writing again.
	fake.ConfirmAfter(0)
	rec, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.TxHash)
	assert.Equal(t, 1, fake.SubmissionCount())
}

func TestGateway_ConcurrentCertifySubmitsOnce(t *testing.T) {
	fake := ledger.NewFake()
	fake.ConfirmAfter(2)
	gw, _ := newGateway(fake)

	var wg sync.WaitGroup
	results := make([]ledger.Record, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
			require.NoError(t, err)
			results[i] = rec
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fake.SubmissionCount(), "concurrent calls with one key collapse into one submission")
	for _, rec := range results[1:] {
		assert.Equal(t, results[0].TxHash, rec.TxHash)
	}
}

func TestGateway_DistinctKeysSubmitIndependently(t *testing.T) {
	fake := ledger.NewFake()
	gw, _ := newGateway(fake)

	_, err := gw.Certify(context.Background(), "app-1", payload("PROP-aaa"))
	require.NoError(t, err)
	_, err = gw.Certify(context.Background(), "app-2", payload("PROP-bbb"))
	require.NoError(t, err)

	assert.Equal(t, 2, fake.SubmissionCount())
}

func TestGateway_LookupReturnsConfirmedRecord(t *testing.T) {
	fake := ledger.NewFake()
	gw, _ := newGateway(fake)

	submitted := payload("PROP-aaa")
	rec, err := gw.Certify(context.Background(), "app-1", submitted)
	require.NoError(t, err)

	found, err := gw.Lookup(context.Background(), "PROP-aaa")
	require.NoError(t, err)
	assert.Equal(t, rec.TxHash, found.TxHash)
	assert.Equal(t, submitted.ContentHash, found.Payload.ContentHash)
}
