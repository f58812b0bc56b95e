package ledger

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"terrier/internal/platform/metrics"
	dErrors "terrier/pkg/domain-errors"
)

// Gateway wraps the raw Client with the guarantees the registry needs:
// exactly one ledger write per idempotency key, and a bounded wait for
// confirmation.
type Gateway struct {
	client       Client
	reservations ReservationStore
	deadline     time.Duration
	interval     time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	group        singleflight.Group
}

type GatewayOption func(*Gateway)

func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

func WithConfirmWindow(deadline, interval time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.deadline = deadline
		g.interval = interval
	}
}

func NewGateway(client Client, reservations ReservationStore, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client:       client,
		reservations: reservations,
		deadline:     30 * time.Second,
		interval:     500 * time.Millisecond,
		logger:       logger,
		tracer:       otel.Tracer("terrier/ledger"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Certify anchors the payload on the ledger, at most once per key, and waits
// for confirmation. Concurrent calls for the same key collapse into one
// submission; a retry after a timeout re-polls the reservation's submission
// instead of writing again. A definitive ledger failure clears the
// reservation so the caller may retry from scratch; a timeout keeps it, and
// so does confirmation — the caller releases the key once the record is
// persisted.
func (g *Gateway) Certify(ctx context.Context, key string, payload Payload) (Record, error) {
	result, err, _ := g.group.Do(key, func() (any, error) {
		return g.certify(ctx, key, payload)
	})
	if err != nil {
		return Record{}, err
	}
	return result.(Record), nil
}

func (g *Gateway) certify(ctx context.Context, key string, payload Payload) (Record, error) {
	ctx, span := g.tracer.Start(ctx, "ledger.certify",
		trace.WithAttributes(
			attribute.String("ledger.key", key),
			attribute.String("ledger.property_id", payload.PropertyID),
			attribute.String("ledger.kind", string(payload.Kind)),
		))
	defer span.End()

	submissionID, reserved, err := g.reservations.Get(ctx, key)
	if err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "reservation lookup failed")
	}
	if !reserved {
		submissionID, err = g.client.Submit(ctx, payload)
		if err != nil {
			return Record{}, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger submission failed")
		}
		if err := g.reservations.Put(ctx, key, submissionID); err != nil {
			// The submission is in flight but unrecorded; surface the
			// error rather than risk a second submission on retry.
			return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "reservation write failed")
		}
		g.logger.Info("ledger submission created",
			"key", key, "submission_id", submissionID, "property_id", payload.PropertyID)
	} else {
		g.logger.Info("reusing in-flight ledger submission",
			"key", key, "submission_id", submissionID)
	}

	span.SetAttributes(attribute.String("ledger.submission_id", submissionID))
	return g.awaitConfirmation(ctx, key, submissionID)
}

func (g *Gateway) awaitConfirmation(ctx context.Context, key, submissionID string) (Record, error) {
	deadline := time.NewTimer(g.deadline)
	defer deadline.Stop()
	tick := time.NewTicker(g.interval)
	defer tick.Stop()

	for {
		g.metrics.IncLedgerConfirmPolls()
		sub, err := g.client.Status(ctx, submissionID)
		if err != nil {
			return Record{}, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger status check failed")
		}

		switch sub.Status {
		case StatusConfirmed:
			// The reservation stays until the caller releases it: if the
			// writes that follow confirmation fail, a retry must find the
			// reservation and converge on this submission rather than
			// write a second one.
			return Record{
				TxHash:   sub.TxHash,
				BlockRef: sub.BlockRef,
			}, nil
		case StatusFailed:
			if err := g.reservations.Delete(ctx, key); err != nil {
				g.logger.Warn("reservation cleanup failed", "key", key, "error", err)
			}
			return Record{}, dErrors.New(dErrors.CodeLedgerUnavailable, "ledger rejected the transaction")
		}

		select {
		case <-ctx.Done():
			return Record{}, dErrors.Wrap(ctx.Err(), dErrors.CodeLedgerTimeout, "ledger confirmation interrupted")
		case <-deadline.C:
			// Reservation kept: the submission may still confirm and a
			// retry must re-poll it rather than submit again.
			return Record{}, dErrors.New(dErrors.CodeLedgerTimeout, "ledger confirmation timed out")
		case <-tick.C:
		}
	}
}

// Release clears the reservation for a key. Call it only once the confirmed
// record has been durably persisted off-chain.
func (g *Gateway) Release(ctx context.Context, key string) {
	if err := g.reservations.Delete(ctx, key); err != nil {
		g.logger.Warn("reservation release failed", "key", key, "error", err)
	}
}

// Lookup returns the confirmed on-chain record for a property.
func (g *Gateway) Lookup(ctx context.Context, propertyID string) (Record, error) {
	return g.client.Record(ctx, propertyID)
}
