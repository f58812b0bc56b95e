// Package audit records every state transition in the registry as an
// append-only trail. Entries are never mutated or deleted; external reporting
// consumes them from the store or the Kafka topic.
package audit

import (
	"time"

	"terrier/pkg/domain"
)

// Entry is one immutable audit record. Keep it transport-agnostic so stores
// and sinks can fan out.
type Entry struct {
	ActorRef    domain.ActorRef `json:"actor_ref"`
	Action      Action          `json:"action"`
	SubjectRef  string          `json:"subject_ref"`
	Timestamp   time.Time       `json:"timestamp"`
	LedgerTxRef string          `json:"ledger_tx_ref,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	Detail      string          `json:"detail,omitempty"`
}

// Action labels what happened. The set is closed: reporting pipelines key on
// these values.
type Action string

const (
	ActionApplicationSubmitted Action = "APPLICATION_SUBMITTED"
	ActionDecisionRecorded     Action = "DECISION_RECORDED"
	ActionApplicationRejected  Action = "APPLICATION_REJECTED"
	ActionCertificateGenerated Action = "CERTIFICATE_GENERATED"
	ActionPropertyTransferred  Action = "PROPERTY_TRANSFERRED"
	ActionDisputeRaised        Action = "DISPUTE_RAISED"
	ActionCaseOpened           Action = "CASE_OPENED"
	ActionCourtOrderIssued     Action = "COURT_ORDER_ISSUED"
	ActionHearingScheduled     Action = "HEARING_SCHEDULED"
	ActionCaseClosed           Action = "CASE_CLOSED"
	ActionDisputeDismissed     Action = "DISPUTE_DISMISSED"
	ActionSettingsUpdated      Action = "SETTINGS_UPDATED"
)
