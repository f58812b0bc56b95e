// Package ledger fronts the distributed ledger the registry anchors titles
// on. The Client is the raw transport; the Gateway layers certify-once
// idempotency and bounded confirmation polling on top of it.
package ledger

import (
	"context"
	"time"
)

// Status of a submitted ledger transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// PayloadKind distinguishes what a ledger write records.
type PayloadKind string

const (
	KindCertify  PayloadKind = "certify"
	KindTransfer PayloadKind = "transfer"
)

// Payload is the content anchored on chain for one property event.
type Payload struct {
	Kind        PayloadKind `json:"kind"`
	PropertyID  string      `json:"property_id"`
	OwnerRef    string      `json:"owner_ref"`
	ContentHash string      `json:"content_hash"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Submission is the ledger's view of one submitted transaction.
type Submission struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	TxHash   string `json:"tx_hash,omitempty"`
	BlockRef string `json:"block_ref,omitempty"`
}

// Record is a confirmed on-chain entry for a property.
type Record struct {
	TxHash   string  `json:"tx_hash"`
	BlockRef string  `json:"block_ref"`
	Payload  Payload `json:"payload"`
}

// Client is the raw ledger transport. Implementations: the HTTP adapter for
// a real ledger node and the in-memory fake for tests and standalone runs.
type Client interface {
	// Submit hands a payload to the ledger and returns a submission id.
	// Submission is asynchronous; confirmation is observed via Status.
	Submit(ctx context.Context, payload Payload) (string, error)

	// Status reports the current state of a submission.
	Status(ctx context.Context, submissionID string) (Submission, error)

	// Record returns the latest confirmed record for a property, or
	// sentinel.ErrNotFound when the property has never been anchored.
	Record(ctx context.Context, propertyID string) (Record, error)
}
